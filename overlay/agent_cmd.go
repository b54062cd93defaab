package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gosuda/portal-overlay/overlay/agent"
	"github.com/gosuda/portal-overlay/overlay/engine"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Connect a headless session that logs every applied effect",
	RunE:  runAgent,
}

func init() {
	flags := agentCmd.Flags()
	flags.String(keyURL, "ws://127.0.0.1:8080/ws", "session websocket URL")
	flags.String(keyDisplayName, "agent", "display name announced to the server")
	flags.String(keyPage, "Launcher", "page reported on connect")
	flags.String(keyActivity, "Idle", "activity reported on connect")
	flags.String(keyDevice, "Headless", "device label")
	flags.String(keyPoster, "", "optional poster thumbnail URL")
	flags.Duration(keyHeartbeat, time.Minute, "activity heartbeat interval; keep below the server session TTL")
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.WithEffects(agent.LogEffects{Logger: log.Logger}))
	a := agent.New(agent.Config{
		URL:       viper.GetString(keyURL),
		Name:      viper.GetString(keyDisplayName),
		Page:      viper.GetString(keyPage),
		Activity:  viper.GetString(keyActivity),
		Device:    viper.GetString(keyDevice),
		Poster:    viper.GetString(keyPoster),
		Heartbeat: viper.GetDuration(keyHeartbeat),
	}, eng)

	log.Info().Str("url", viper.GetString(keyURL)).Msg("[agent] connecting")
	err := a.Run(ctx)
	if errors.Is(err, agent.ErrKicked) {
		log.Warn().Msg("[agent] session terminated by controller")
		return nil
	}
	return err
}
