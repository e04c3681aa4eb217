// Command chatctl is a terminal client for the chat API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"social-chat/internal/client"
	"social-chat/internal/media"
	"social-chat/internal/middleware"
	"social-chat/internal/models"
	"social-chat/internal/observability"
	"social-chat/internal/service"
)

const usage = `usage: chatctl <command> [flags]

commands:
  token   -user ID [-secret S] [-ttl D]   issue a dev token
  login   -token T -user ID               store a session
  logout                                  clear the session
  chats                                   list chats
  open    -user ID                        get or create a chat with a friend
  send    -chat ID [-text T] [-file PATH] send a message
  watch   -chat ID                        follow a chat; stdin lines are sent
`

type app struct {
	session *client.Session
	api     *client.API
	wsURL   string
	log     *logrus.Logger
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	log := observability.NewLogger(env("CHATCTL_LOG_LEVEL", "warn"), false)
	log.SetOutput(os.Stderr)

	session := client.NewSession(env("CHATCTL_SESSION", defaultSessionPath()))
	if err := session.Init(); err != nil {
		log.WithError(err).Fatal("load session")
	}
	a := &app{
		session: session,
		api:     client.NewAPI(env("CHATCTL_API", "http://localhost:8083/api/v1"), session, nil),
		wsURL:   env("CHATCTL_WS", "ws://localhost:8083/ws"),
		log:     log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			fmt.Fprintln(os.Stderr, "session expired, run chatctl login")
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "token":
		user := fs.Int("user", 0, "user id")
		secret := fs.String("secret", env("JWT_SECRET", "dev-secret-change-me"), "signing secret")
		ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *user <= 0 {
			return errors.New("-user is required")
		}
		token, err := middleware.NewAuthenticator(*secret).IssueToken(*user, *ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil

	case "login":
		token := fs.String("token", "", "bearer token")
		user := fs.Int("user", 0, "user id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *token == "" || *user <= 0 {
			return errors.New("-token and -user are required")
		}
		return a.session.Save(*token, *user)

	case "logout":
		return a.session.Clear()

	case "chats":
		chats, err := a.api.ListChats(ctx)
		if err != nil {
			return err
		}
		for _, c := range chats {
			last := ""
			if c.LastMessage != nil {
				last = preview(c.LastMessage.Text, c.LastMessage.Media)
			}
			fmt.Printf("#%d  %-20s  unread=%d  %s\n", c.ID, c.Friend.Username, c.UnreadCount, last)
		}
		return nil

	case "open":
		user := fs.Int("user", 0, "friend user id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		chat, err := a.api.GetOrCreateChat(ctx, *user)
		if err != nil {
			return err
		}
		fmt.Printf("chat #%d\n", chat.ID)
		return nil

	case "send":
		chatID := fs.Int("chat", 0, "chat id")
		text := fs.String("text", "", "message text")
		file := fs.String("file", "", "attachment path")
		if err := fs.Parse(args); err != nil {
			return err
		}
		conv := client.NewConversation(*chatID)
		msg, err := a.send(ctx, conv, *text, *file)
		if err != nil {
			return err
		}
		fmt.Printf("sent #%d (seq %d)\n", msg.ID, msg.Seq)
		return nil

	case "watch":
		chatID := fs.Int("chat", 0, "chat id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.watch(ctx, *chatID)
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// send compresses the attachment, shows it as pending and swaps in the
// stored message on success.
func (a *app) send(ctx context.Context, conv *client.Conversation, text, path string) (service.MessageView, error) {
	var att *media.Attachment
	var pv *media.Preview
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return service.MessageView{}, err
		}
		compressed, err := media.DefaultCompressor().Compress(media.Attachment{
			Name:        filepath.Base(path),
			ContentType: mimetype.Detect(data).String(),
			Data:        data,
		})
		if err != nil {
			return service.MessageView{}, err
		}
		att = &compressed
		p := media.PreviewFor(compressed, "file://"+path)
		pv = &p
	}

	pending := conv.AddPending(text, pv)
	msg, err := a.api.SendMessage(ctx, conv.ChatID, text, att)
	if err != nil {
		conv.Fail(pending.TempID)
		return service.MessageView{}, err
	}
	conv.Confirm(pending.TempID, msg)
	return msg, nil
}

func (a *app) watch(ctx context.Context, chatID int) error {
	conv := client.NewConversation(chatID)
	seen := map[int]bool{}
	fetch := func(ctx context.Context) error {
		page, err := a.api.ListMessages(ctx, chatID, service.DefaultPage, service.DefaultLimit)
		if err != nil {
			return err
		}
		conv.ApplyPage(page.Messages)
		for _, e := range conv.Entries() {
			if e.Pending || seen[e.Message.ID] {
				continue
			}
			seen[e.Message.ID] = true
			printEntry(e)
		}
		return nil
	}
	poller := client.NewPoller(client.DefaultPollInterval, fetch, a.log)

	sock, err := client.DialSocket(ctx, a.wsURL, a.session, a.log)
	if err != nil {
		a.log.WithError(err).Warn("realtime unavailable, polling only")
	} else {
		defer sock.Close()
		if err := sock.Join(ctx, chatID); err != nil {
			return err
		}
		go func() {
			err := sock.Listen(ctx, poller, func(ev models.ChatEvent) {
				if ev.Event == models.EventTyping && ev.IsTyping != nil && *ev.IsTyping {
					fmt.Fprintf(os.Stderr, "user %d is typing...\n", ev.UserID)
				}
			})
			if err != nil {
				a.log.WithError(err).Warn("socket closed")
			}
		}()
	}

	go poller.Run(ctx)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if sock != nil {
				_ = sock.Typing(ctx, chatID)
			}
			msg, err := a.send(ctx, conv, text, "")
			if err != nil {
				fmt.Fprintln(os.Stderr, "send failed:", err)
				continue
			}
			if sock != nil {
				_ = sock.AnnounceMessage(ctx, chatID, msg.ID)
			}
			poller.Trigger()
		}
	}
}

func printEntry(e client.Entry) {
	m := e.Message
	who := fmt.Sprintf("user %d", m.SenderID)
	if m.Sender != nil {
		who = m.Sender.Username
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), who, preview(m.Text, m.Media))
}

func preview(text string, m *models.Media) string {
	if m == nil {
		return text
	}
	if text == "" {
		return fmt.Sprintf("[%s] %s", m.Type, m.URL)
	}
	return fmt.Sprintf("%s [%s]", text, m.Type)
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".chatctl-session.json"
	}
	return filepath.Join(dir, "chatctl", "session.json")
}
