package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers a plain-text log line to an operator chat.
type Sender interface {
	SendPlain(chatID int64, threadID int, text string) error
}

type chatItem struct {
	chatID   int64
	threadID int
	text     string
}

// chatSink is a zerolog LevelWriter that forwards lines to a chat.
// Writes never block logging: the queue drops when full.
type chatSink struct {
	sender Sender

	mu       sync.Mutex
	cfg      ChatConfig
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue     chan chatItem
	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{
		sender: sender,
		queue:  make(chan chatItem, 256),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *chatSink) apply(cfg ChatConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

func (c *chatSink) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case it := <-c.queue:
			if c.sender == nil {
				continue
			}
			_ = c.sender.SendPlain(it.chatID, it.threadID, it.text)
		}
	}
}

func (c *chatSink) close() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started.Load() {
		<-c.done
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	cfg := c.cfg
	min := c.minLevel
	lim := c.limiter
	c.mu.Unlock()

	if c.sender == nil || cfg.ChatID == 0 || lim == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	text := formatChatLine(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatItem{chatID: cfg.ChatID, threadID: cfg.ThreadID, text: text}:
	default:
	}
	return len(p), nil
}

// formatChatLine renders one zerolog JSON line as "[LEVEL] msg" followed by
// sorted "- key=value" lines.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
