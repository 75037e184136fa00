package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/nexus"
	"pkt.systems/nexus/internal/appconfig"
	"pkt.systems/nexus/internal/command"
	"pkt.systems/nexus/internal/eventbus"
	"pkt.systems/nexus/internal/format"
	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

const shellWordWrap = 100

func newShellCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run the interactive terminal shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			// The terminal belongs to the transcript, logs go to the file only.
			logger, closeLog, err := fileLogger(cfg.Logging, nil)
			if err != nil {
				return err
			}
			defer closeLog()
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)

			formatter, err := format.NewMarkdownFormatter(shellWordWrap)
			if err != nil {
				return err
			}
			srv, err := nexus.New(ctx, serverConfig(cfg), nexus.ServerDeps{
				Formatter: formatter,
				Logger:    logger,
			}, nexus.WithEventBus())
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Stop(stopCtx)
			}()

			events, unsubscribe := srv.Events().Subscribe()
			defer unsubscribe()
			if err := srv.Start(ctx); err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			go printEvents(events, out)

			handler := command.NewHandler(command.FromShell(srv.Shell()), out, command.HandlerConfig{
				DisableAuditLogging: cfg.Logging.DisableAuditTrails,
			})
			return runREPL(ctx, cmd.InOrStdin(), out, handler, srv.Shell())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

type commandHandler interface {
	Handle(ctx context.Context, input string) (bool, error)
}

type submitter interface {
	Submit(ctx context.Context, input string) (schema.SubmitResponse, error)
}

// runREPL reads one line per request until input ends or ":quit" is typed.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, handler commandHandler, shell submitter) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if input == ":quit" || input == ":exit" {
				return nil
			}
			handled, err := handler.Handle(ctx, input)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if handled {
				continue
			}
			if _, err := shell.Submit(ctx, input); err != nil {
				if errors.Is(err, schema.ErrBusy) {
					fmt.Fprintln(out, "busy: wait for the current answer")
					continue
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// printEvents writes transcript and status changes until the bus closes.
func printEvents(events <-chan eventbus.Event, out io.Writer) {
	for ev := range events {
		if line, ok := eventLine(ev); ok {
			fmt.Fprintln(out, line)
		}
	}
}

func eventLine(ev eventbus.Event) (string, bool) {
	switch ev.Type {
	case eventbus.EventTurn:
		if ev.Turn.Reset {
			return "-- transcript cleared --", true
		}
		turn := ev.Turn.Turn
		switch turn.Role {
		case schema.RoleAssistant:
			if !turn.Final {
				return "", false
			}
			text := turn.Rendered
			if strings.TrimSpace(text) == "" {
				text = turn.Text
			}
			return strings.TrimRight(text, "\n"), true
		case schema.RoleSystem:
			return "! " + turn.Text, true
		}
	case eventbus.EventStatus:
		if ev.Status.Message != "" {
			return "~ " + ev.Status.Message, true
		}
	case eventbus.EventSession:
		switch ev.Session.Type {
		case schema.SessionEventActivated:
			if ev.Session.Home {
				return "> home", true
			}
			return "> " + sessionLabel(ev.Session.Session), true
		case schema.SessionEventClosed:
			return "x " + sessionLabel(ev.Session.Session), true
		}
	case eventbus.EventSettings:
		return "settings requested (:ollama <url> sets the local server)", true
	}
	return "", false
}

func sessionLabel(s schema.SessionSnapshot) string {
	if s.Title != "" {
		return s.Title
	}
	if s.URL != "" {
		return s.URL
	}
	return string(s.ID)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
