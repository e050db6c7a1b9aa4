package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"statusbot/internal/transport"
	logx "statusbot/pkg/logx"
)

type replies struct {
	mu   sync.Mutex
	sent []string
}

func (r *replies) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return transport.MessageRef{MessageID: len(r.sent)}, nil
}

func (r *replies) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func msg(from int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{ChatID: -1, FromID: from, Text: text}}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		name string
		args int
		ok   bool
	}{
		{"/status", "status", 0, true},
		{"/Status@hex_bot now", "status", 1, true},
		{"  /unwatch  a b ", "unwatch", 2, true},
		{"hello", "", 0, false},
		{"/", "", 0, false},
		{"/@bot", "", 0, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if ok != tc.ok || name != tc.name || len(args) != tc.args {
			t.Errorf("parseCommand(%q) = %q %v %v", tc.in, name, args, ok)
		}
	}
}

func TestRouteRunsHandler(t *testing.T) {
	rep := &replies{}
	r := New(logx.Nop(), rep, []int64{42})
	var got *Request
	r.Register(Command{Name: "status", Aliases: []string{"s"}, Handle: func(_ context.Context, req *Request) error {
		got = req
		return nil
	}})

	job := r.Route(context.Background(), msg(7, "/s@bot extra"))
	if job == nil {
		t.Fatal("alias did not resolve")
	}
	job()
	if got == nil || got.Command != "status" || len(got.Args) != 1 || got.IsOwner || got.Chat.ChatID != -1 {
		t.Fatalf("request = %+v", got)
	}
	if r.Route(context.Background(), msg(7, "/nope")) != nil {
		t.Fatal("unknown command routed")
	}
	if r.Route(context.Background(), msg(7, "plain text")) != nil {
		t.Fatal("plain text routed")
	}
}

func TestOwnerOnly(t *testing.T) {
	rep := &replies{}
	r := New(logx.Nop(), rep, []int64{42})
	called := false
	r.Register(Command{Name: "unwatch", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error {
		called = true
		return nil
	}})

	if job := r.Route(context.Background(), msg(7, "/unwatch")); job != nil {
		t.Fatal("non-owner got a job")
	}
	if s := rep.all(); len(s) != 1 || s[0] != "unauthorized" {
		t.Fatalf("replies = %v", s)
	}

	r.Route(context.Background(), msg(42, "/unwatch"))()
	if !called {
		t.Fatal("owner command not run")
	}

	r.SetOwners(nil)
	if job := r.Route(context.Background(), msg(42, "/unwatch")); job != nil {
		t.Fatal("owner list not updated")
	}
}

func TestPanicAndErrorAreContained(t *testing.T) {
	r := New(logx.Nop(), &replies{}, nil)
	r.Register(
		Command{Name: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }},
		Command{Name: "fail", Handle: func(context.Context, *Request) error { return errors.New("nope") }},
	)
	r.Route(context.Background(), msg(1, "/boom"))()
	r.Route(context.Background(), msg(1, "/fail"))()
}

func TestRunAndHelp(t *testing.T) {
	rep := &replies{}
	r := New(logx.Nop(), rep, nil)
	r.Register(Command{Name: "status", Description: "show <live> status", Handle: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "ok")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 4)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, updates, 2) }()

	updates <- msg(1, "/status")
	updates <- msg(1, "/help")
	deadline := time.Now().Add(2 * time.Second)
	for len(rep.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	sent := strings.Join(rep.all(), "\n")
	if !strings.Contains(sent, "ok") || !strings.Contains(sent, "/status - show &lt;live&gt; status") {
		t.Fatalf("replies = %q", sent)
	}
}
