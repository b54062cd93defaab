package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyLogLevel        = "log-level"
	keyLogJSON         = "log-json"
	keyServerURL       = "server-url"
	keyPort            = "port"
	keyName            = "name"
	keyCredKey         = "cred-key"
	keyAdminKey        = "admin-key"
	keyMaxSessions     = "max-sessions"
	keySessionTTL      = "session-ttl"
	keyEvictInterval   = "evict-interval"
	keyPublishInterval = "publish-interval"
	keyChatGate        = "chat-gate"
	keyAuditPath       = "audit-path"
	keyURL             = "url"
	keyDisplayName     = "display-name"
	keyPage            = "page"
	keyActivity        = "activity"
	keyDevice          = "device"
	keyPoster          = "poster"
	keyHeartbeat       = "heartbeat"
)

// initConfig binds the flags of the running command, environment variables
// prefixed with OVERLAY_ and the optional config file, then configures logging.
func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("overlay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if flagConfigFile != "" {
		viper.SetConfigFile(flagConfigFile)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}
	setupLogging(viper.GetString(keyLogLevel), viper.GetBool(keyLogJSON))
	return nil
}

func setupLogging(level string, asJSON bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !asJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// relayURLs splits repeated or comma separated relay URLs.
func relayURLs(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, p := range strings.Split(r, ",") {
			if u := strings.TrimSpace(p); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}
