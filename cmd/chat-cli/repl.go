package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const maxInputBytes = 1 << 20

type command struct {
	name string
	arg  string
}

// parseCommand reports whether line is a slash command.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

type repl struct {
	sess *session.Session
	in   io.Reader
	out  io.Writer

	prompt *color.Color
	reply  *color.Color
	info   *color.Color
	warn   *color.Color
}

func newREPL(sess *session.Session, in io.Reader, out io.Writer) *repl {
	return &repl{
		sess:   sess,
		in:     in,
		out:    out,
		prompt: color.New(color.FgGreen, color.Bold),
		reply:  color.New(color.FgCyan),
		info:   color.New(color.Faint),
		warn:   color.New(color.FgYellow),
	}
}

// Run reads lines until EOF, /exit or ctx is cancelled.
func (r *repl) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputBytes)

	r.info.Fprintf(r.out, "model: %s (type /exit to quit)\n", r.model())
	for {
		if ctx.Err() != nil {
			return nil
		}
		r.prompt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if cmd, ok := parseCommand(line); ok {
			if cmd.name == "exit" || cmd.name == "quit" {
				return nil
			}
			r.dispatch(ctx, cmd)
			continue
		}
		r.send(ctx, line)
	}
}

func (r *repl) dispatch(ctx context.Context, cmd command) {
	orch := r.sess.Orchestrator
	switch cmd.name {
	case "new":
		orch.NewConversation()
		r.info.Fprintln(r.out, "started a new conversation")
	case "regen":
		r.report(orch.Regenerate(ctx, r.streamOptions()))
	case "list":
		r.list(ctx)
	case "select":
		if err := orch.SelectConversation(ctx, cmd.arg); err != nil {
			r.fail(err)
			return
		}
		r.transcript()
	case "delete":
		if err := orch.DeleteConversation(ctx, cmd.arg); err != nil {
			r.fail(err)
			return
		}
		r.info.Fprintf(r.out, "deleted %s\n", cmd.arg)
	case "model":
		if cmd.arg == "" {
			r.info.Fprintf(r.out, "model: %s\n", r.model())
			return
		}
		if err := orch.SelectModel(cmd.arg); err != nil {
			r.fail(err)
			return
		}
		r.info.Fprintf(r.out, "model set to %s\n", cmd.arg)
	case "quota":
		stats := orch.QuotaStats(ctx)
		if stats.Limit <= 0 {
			r.info.Fprintln(r.out, "quota: unlimited")
			return
		}
		r.info.Fprintf(r.out, "quota: %d/%d used, resets %s\n", stats.Used, stats.Limit, stats.WindowResetAt.Local().Format(time.Kitchen))
	default:
		r.warn.Fprintf(r.out, "unknown command /%s\n", cmd.name)
	}
}

func (r *repl) send(ctx context.Context, content string) {
	r.report(r.sess.Orchestrator.SendTurn(ctx, content, r.streamOptions()))
}

func (r *repl) streamOptions() turn.TurnOptions {
	return turn.TurnOptions{
		OnChunk: func(c turn.Chunk) {
			r.reply.Fprint(r.out, c.Delta)
		},
	}
}

func (r *repl) report(result *turn.TurnResult, err error) {
	if err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintln(r.out)
	if result.Failed {
		r.warn.Fprintln(r.out, result.ErrorMessage)
		return
	}
	r.info.Fprintf(r.out, "[%s, %s]\n", result.Model, result.Duration.Round(time.Millisecond))
}

func (r *repl) list(ctx context.Context) {
	items, err := r.sess.Orchestrator.Conversations(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	if len(items) == 0 {
		r.info.Fprintln(r.out, "no conversations")
		return
	}
	active := r.sess.Orchestrator.Snapshot().ConversationID
	for _, c := range items {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s  %s\n", marker, c.ID, c.Title)
	}
}

func (r *repl) transcript() {
	snap := r.sess.Orchestrator.Snapshot()
	r.info.Fprintf(r.out, "%s\n", snap.Title)
	for _, m := range snap.Messages {
		if m.IsUser() {
			r.prompt.Fprint(r.out, "> ")
			fmt.Fprintln(r.out, m.Content)
			continue
		}
		r.reply.Fprintln(r.out, m.Content)
	}
}

func (r *repl) model() string {
	if m := r.sess.Orchestrator.Snapshot().Model; m != "" {
		return m
	}
	return "(none)"
}

func (r *repl) fail(err error) {
	var pe *platformerrors.PlatformError
	if errors.As(err, &pe) {
		r.warn.Fprintln(r.out, pe.Message)
		return
	}
	r.warn.Fprintln(r.out, err.Error())
}
