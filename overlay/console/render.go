package console

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/gosuda/portal-overlay/overlay/chat"
	"github.com/gosuda/portal-overlay/overlay/effects"
	"github.com/gosuda/portal-overlay/overlay/protocol"
	"github.com/gosuda/portal-overlay/overlay/registry"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	idColor     = color.New(color.FgYellow)
	onColor     = color.New(color.FgGreen, color.Bold)
	offColor    = color.New(color.FgHiBlack)
	adminColor  = color.New(color.FgRed, color.Bold)
	errColor    = color.New(color.FgRed)
)

// RenderSessions prints one line per session, marking selected ids.
func RenderSessions(w io.Writer, sessions []registry.Session, selected []string, now time.Time) {
	headerColor.Fprintf(w, "%d session(s)\n", len(sessions))
	sel := make(map[string]bool, len(selected))
	for _, id := range selected {
		sel[id] = true
	}
	for _, s := range sessions {
		mark := " "
		if sel[s.ID] {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s  %-16s %-12s %-24s %-10s %s ago\n",
			mark,
			idColor.Sprint(s.ID),
			s.DisplayName,
			s.CurrentPage,
			s.CurrentActivity,
			s.DeviceLabel,
			now.Sub(s.LastSeenAt).Truncate(time.Second),
		)
	}
}

// RenderState prints the toggles and the chat flag.
func RenderState(w io.Writer, st protocol.AdminState) {
	parts := make([]string, 0, len(effects.Toggles)+1)
	for _, f := range effects.Toggles {
		parts = append(parts, flag(string(f), st.Effects.Value(f)))
	}
	parts = append(parts, flag("chat", st.ChatEnabled))
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func flag(name string, on bool) string {
	if on {
		return onColor.Sprint(name + ":on")
	}
	return offColor.Sprint(name + ":off")
}

func RenderChat(w io.Writer, m chat.Message) {
	name := m.SenderName
	if m.IsAdmin {
		name = adminColor.Sprint(name)
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", m.SentAt.Format("15:04:05"), name, m.Text)
}

func RenderError(w io.Writer, msg string) {
	errColor.Fprintf(w, "error: %s\n", msg)
}
