package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gosuda/portal-overlay/overlay/console"
	"github.com/gosuda/portal-overlay/overlay/protocol"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl [command...]",
	Short: "Controller console; runs one command when given, otherwise a REPL",
	RunE:  runCtl,
}

func init() {
	flags := ctlCmd.Flags()
	flags.String(keyURL, "ws://127.0.0.1:8080/ws/admin", "controller websocket URL")
	flags.String(keyAdminKey, "", "shared secret configured on the server")
}

func runCtl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	if key := viper.GetString(keyAdminKey); key != "" {
		header.Set(adminKeyHeader, key)
	}
	target, err := url.Parse(viper.GetString(keyURL))
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	con := console.New()
	view := &ctlView{out: out, console: con}
	readErr := make(chan error, 1)
	go func() { readErr <- view.read(conn) }()

	send := func(line string) error {
		msgs, err := con.Execute(line)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				return err
			}
		}
		return nil
	}

	if len(args) > 0 {
		if err := send(strings.Join(quoteArgs(args), " ")); err != nil {
			return err
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	fmt.Fprintln(out, "connected; type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit", "exit":
				return nil
			case "help":
				fmt.Fprintln(out, console.Help)
				continue
			}
			if err := send(line); err != nil {
				if errors.Is(err, console.ErrUnknownCommand) || errors.Is(err, console.ErrUsage) {
					console.RenderError(out, err.Error())
					continue
				}
				return err
			}
		}
	}
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		out[i] = a
	}
	return out
}

type ctlView struct {
	out     io.Writer
	console *console.Console
}

func (v *ctlView) read(conn *websocket.Conn) error {
	for {
		var ev protocol.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		switch ev.Type {
		case protocol.EventUserList:
			console.RenderSessions(v.out, ev.Users, v.console.Selection(), time.Now())
		case protocol.EventAdminStateUpdate:
			if ev.State != nil {
				console.RenderState(v.out, *ev.State)
			}
		case protocol.EventReceiveChat:
			if ev.Chat != nil {
				console.RenderChat(v.out, *ev.Chat)
			}
		case protocol.EventError:
			console.RenderError(v.out, ev.Message)
		}
	}
}
