// Package router dispatches slash commands from transport updates to handlers.
package router

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "statusbot/internal/runtime/supervisor"
	"statusbot/internal/transport"
	logx "statusbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Replier is the part of the adapter the router talks back through.
type Replier interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Request struct {
	Update       transport.Update
	Chat         transport.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string
	ReqID        string
	IsOwner      bool
	Logger       logx.Logger

	replier Replier
}

// Reply sends a plain text answer to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.replier.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true})
	return err
}

// Router holds the command table and a bounded worker pool.
type Router struct {
	log     logx.Logger
	replier Replier

	mu       sync.RWMutex
	byName   map[string]Command
	commands []Command
	owners   []int64

	jobs chan func()
}

const defaultCommandTimeout = 30 * time.Second

func New(log logx.Logger, replier Replier, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:     log,
		replier: replier,
		byName:  map[string]Command{},
		owners:  append([]int64(nil), owners...),
		jobs:    make(chan func(), 64),
	}
	r.Register(Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := r.replier.SendText(ctx, req.Chat, r.HelpText(), &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		},
	})
	return r
}

// Register adds commands; a later registration of the same name wins.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		r.commands = append(r.commands, c)
		r.byName[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				r.byName[a] = c
			}
		}
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = append([]int64(nil), owners...)
	r.mu.Unlock()
}

func (r *Router) HelpText() string {
	r.mu.RLock()
	seen := map[string]Command{}
	for _, c := range r.commands {
		seen[c.Name] = c
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, n := range names {
		c := seen[n]
		line := fmt.Sprintf("/%s - %s", n, html.EscapeString(c.Description))
		if c.Access == AccessOwnerOnly {
			line += " <i>(owner)</i>"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run consumes updates until ctx ends or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update, workers int) error {
	if workers <= 0 {
		workers = 2
	}
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	for i := 0; i < workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithStopOnCleanExit(true))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.Route(ctx, up)
			if job == nil {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				_, _ = r.replier.SendText(ctx, chatOf(up), "busy, try again", nil)
			}
		}
	}
}

// Route resolves an update to a ready-to-run job, or nil when it is not a known command.
// Access failures are answered directly.
func (r *Router) Route(ctx context.Context, up transport.Update) func() {
	msg := up.Message
	if up.Kind != transport.UpdateMessage || msg == nil {
		return nil
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}

	r.mu.RLock()
	cmd, found := r.byName[name]
	owner := isOwner(msg.FromID, r.owners)
	r.mu.RUnlock()
	if !found {
		return nil
	}

	chat := chatOf(up)
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = r.replier.SendText(ctx, chat, "unauthorized", nil)
		return nil
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		Args:         args,
		ReqID:        rid,
		IsOwner:      owner,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		replier: r.replier,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	final := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(timeout))
	return func() { _ = final(ctx, req) }
}

// parseCommand splits "/name@bot arg1 arg2".
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func chatOf(up transport.Update) transport.ChatTarget {
	if up.Message == nil {
		return transport.ChatTarget{}
	}
	return transport.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
