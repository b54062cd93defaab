package agent

import (
	"github.com/rs/zerolog"

	"github.com/gosuda/portal-overlay/overlay/effects"
)

// LogEffects renders engine side effects as log lines.
type LogEffects struct {
	Logger zerolog.Logger
}

func (l LogEffects) SetEffect(f effects.Field, on bool) {
	l.Logger.Info().Str("effect", string(f)).Bool("on", on).Msg("[agent] effect")
}

func (l LogEffects) PlaySound(url string) {
	l.Logger.Info().Str("url", url).Msg("[agent] play sound")
}

func (l LogEffects) Speak(text string) {
	l.Logger.Info().Str("text", text).Msg("[agent] speak")
}

func (l LogEffects) Navigate(url string) {
	l.Logger.Info().Str("url", url).Msg("[agent] redirect")
}

func (l LogEffects) Terminate() {
	l.Logger.Warn().Msg("[agent] kicked")
}

func (l LogEffects) Reload() {
	l.Logger.Info().Msg("[agent] reload")
}
