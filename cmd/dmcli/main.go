// dmcli drives the messaging API as one user: list and open conversations,
// send messages, and follow the realtime feed.
//
//	dmcli [flags] list
//	dmcli [flags] talents
//	dmcli [flags] create <recipient-id>
//	dmcli [flags] open <conversation-id> [--more N]
//	dmcli [flags] send <conversation-id> <text...>
//	dmcli [flags] read <conversation-id>
//	dmcli [flags] delete <conversation-id>
//	dmcli [flags] leave <conversation-id>
//	dmcli [flags] tail [--ws]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/session"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/client"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server   string
	token    string
	userID   string
	pageSize int
	more     int
	ws       bool
}

func run(ctx context.Context, argv []string, out io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("dmcli", pflag.ContinueOnError)
	fs.StringVar(&opts.server, "server", envOr("DM_SERVER", "http://localhost:8080"), "API base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("DM_TOKEN"), "bearer token")
	fs.StringVar(&opts.userID, "user", os.Getenv("DM_USER"), "your user id, used to label your own messages")
	fs.IntVar(&opts.pageSize, "page-size", 20, "messages per page")
	fs.IntVar(&opts.more, "more", 0, "older pages to load after opening a conversation")
	fs.BoolVar(&opts.ws, "ws", false, "tail over WebSocket instead of SSE")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dmcli [flags] <list|talents|create|open|send|read|delete|leave|tail> [args]\n%s", fs.FlagUsages())
	}
	if err := fs.Parse(argv); err != nil {
		return err
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	if opts.token == "" {
		return errors.New("--token or DM_TOKEN is required")
	}

	c := client.New(opts.server, opts.token)
	s := session.New(c, opts.userID, opts.pageSize)
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "list":
		if err := s.Load(ctx); err != nil {
			return err
		}
		for _, cs := range s.Conversations() {
			printConversation(out, opts.userID, cs)
		}
		return nil

	case "talents":
		talents, err := c.ListTalents(ctx)
		if err != nil {
			return err
		}
		for _, u := range talents {
			fmt.Fprintf(out, "%s\t%s\n", u.ID, u.DisplayName())
		}
		return nil

	case "create":
		if len(rest) != 1 {
			return errors.New("usage: create <recipient-id>")
		}
		view, err := s.Create(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, view.Conversation.ID)
		return nil

	case "open":
		if len(rest) != 1 {
			return errors.New("usage: open <conversation-id>")
		}
		if err := s.Select(ctx, rest[0]); err != nil {
			return err
		}
		for i := 0; i < opts.more && s.HasMore(); i++ {
			if err := s.LoadMore(ctx); err != nil {
				return err
			}
		}
		if s.HasMore() {
			fmt.Fprintln(out, "... older messages available")
		}
		for _, m := range s.Messages() {
			printMessage(out, opts.userID, m)
		}
		return nil

	case "send":
		if len(rest) < 2 {
			return errors.New("usage: send <conversation-id> <text>")
		}
		if err := s.Select(ctx, rest[0]); err != nil {
			return err
		}
		m, err := s.Send(ctx, strings.Join(rest[1:], " "))
		if w := s.Warning(); w != "" {
			fmt.Fprintln(out, "warning:", w)
		}
		if err != nil {
			return err
		}
		printMessage(out, opts.userID, m)
		return nil

	case "read":
		if len(rest) != 1 {
			return errors.New("usage: read <conversation-id>")
		}
		n, err := c.MarkRead(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d marked read\n", n)
		return nil

	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: delete <conversation-id>")
		}
		return c.DeleteConversation(ctx, rest[0])

	case "leave":
		if len(rest) != 1 {
			return errors.New("usage: leave <conversation-id>")
		}
		return c.LeaveConversation(ctx, rest[0])

	case "tail":
		return tail(ctx, c, opts, out)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func tail(ctx context.Context, c *client.Client, opts options, out io.Writer) error {
	show := func(ev dto.Event) error {
		switch ev.Type {
		case dto.EventMessage:
			if ev.Message != nil {
				printMessage(out, opts.userID, ev.Message.ToMessage())
			}
		case dto.EventConversationDeleted:
			fmt.Fprintf(out, "conversation %s deleted\n", ev.ConversationID)
		case dto.EventConnected:
			fmt.Fprintln(out, "connected")
		case dto.EventError:
			fmt.Fprintf(out, "server error: %s\n", ev.Error)
		}
		return nil
	}

	if !opts.ws {
		err := c.StreamSSE(ctx, show)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	sock, err := c.DialWebSocket(ctx)
	if err != nil {
		return err
	}
	defer sock.Close()
	err = sock.Listen(ctx, show)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printConversation(out io.Writer, self string, cs session.ConversationState) {
	names := make([]string, 0, len(cs.Participants))
	for _, u := range cs.Participants {
		if u.ID != self {
			names = append(names, u.DisplayName())
		}
	}
	last := ""
	if cs.Conversation.LastMessage != nil {
		last = cs.Conversation.LastMessage.Content
	}
	fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", cs.Conversation.ID, strings.Join(names, ", "), cs.Conversation.UpdatedAt.Local().Format(time.DateTime), last)
}

func printMessage(out io.Writer, self string, m chat.Message) {
	who := m.SenderID
	if who == self {
		who = "you"
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), who, m.Content)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
