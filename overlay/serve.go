package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gosuda/portal-overlay/overlay/audit"
	"github.com/gosuda/portal-overlay/overlay/chat"
	"github.com/gosuda/portal-overlay/overlay/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane server",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringSlice(keyServerURL, strings.Split(os.Getenv("RELAY"), ","), "relayserver base URL(s); repeat or comma-separated (from env RELAY if set)")
	flags.Int(keyPort, 8080, "optional local HTTP port (negative to disable)")
	flags.String(keyName, "overlay", "backend display name")
	flags.String(keyCredKey, "", "optional credential key to use for the listener (base64 encoded)")
	flags.String(keyAdminKey, "", "optional shared secret required on /ws/admin and /api")
	flags.Int(keyMaxSessions, 500, "maximum concurrent sessions (0 for unlimited)")
	flags.Duration(keySessionTTL, 5*time.Minute, "evict sessions without activity for this long")
	flags.Duration(keyEvictInterval, 30*time.Second, "how often stale sessions are evicted")
	flags.Duration(keyPublishInterval, time.Second, "minimum interval between activity driven session list updates per session")
	flags.String(keyChatGate, string(chat.GateOpen), "chat gate: open delivers while disabled, strict rejects")
	flags.String(keyAuditPath, "", "optional directory for the command audit journal (PebbleDB)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate, err := chat.ParseGate(viper.GetString(keyChatGate))
	if err != nil {
		return err
	}

	var journal *audit.Journal
	if path := viper.GetString(keyAuditPath); path != "" {
		j, err := audit.Open(path)
		if err != nil {
			log.Warn().Err(err).Msg("[overlay] open audit journal failed; running without it")
		} else {
			journal = j
			log.Info().Str("path", path).Msg("[overlay] audit journal enabled")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := control.NewHub(control.Config{
		MaxSessions:     viper.GetInt(keyMaxSessions),
		SessionTTL:      viper.GetDuration(keySessionTTL),
		EvictInterval:   viper.GetDuration(keyEvictInterval),
		PublishInterval: viper.GetDuration(keyPublishInterval),
		ChatGate:        gate,
		Journal:         journal,
		Metrics:         control.NewMetrics(reg),
	})
	handler := NewHTTPServer(hub, journal, viper.GetString(keyAdminKey), reg).Router()

	name := viper.GetString(keyName)
	relays, err := listenRelays(relayURLs(viper.GetStringSlice(keyServerURL)), name, viper.GetString(keyCredKey))
	if err != nil {
		hub.Close()
		_ = journal.Close()
		return err
	}
	if len(relays.listeners) > 0 {
		log.Info().Int("relays", len(relays.listeners)).Msg("[overlay] relay listener enabled")
	} else {
		log.Info().Msg("[overlay] relay disabled; running local mode only")
	}
	for i, ln := range relays.listeners {
		go func() {
			if err := http.Serve(ln, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
				log.Error().Err(err).Int("listener", i).Msg("[overlay] relay http error")
			}
		}()
	}

	var httpSrv *http.Server
	if port := viper.GetInt(keyPort); port >= 0 {
		httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[overlay] serving locally at http://127.0.0.1:%d", port)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[overlay] local http stopped")
				stop()
			}
		}()
	}
	if httpSrv == nil && len(relays.listeners) == 0 {
		hub.Close()
		_ = journal.Close()
		return fmt.Errorf("nothing to serve: set --port or --server-url")
	}

	<-ctx.Done()
	relays.Close()
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("[overlay] http server shutdown error")
		}
	}
	hub.Close()
	if err := journal.Close(); err != nil {
		log.Warn().Err(err).Msg("[overlay] audit journal close error")
	}
	log.Info().Msg("[overlay] shutdown complete")
	return nil
}
