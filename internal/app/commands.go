package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"statusbot/internal/status"
	"statusbot/internal/transport"
	"statusbot/internal/transport/telegram/router"
	logx "statusbot/pkg/logx"
)

// targetID keys a broadcast by chat and forum thread.
func targetID(c transport.ChatTarget) string {
	id := strconv.FormatInt(c.ChatID, 10)
	if c.ThreadID != 0 {
		id += ":" + strconv.Itoa(c.ThreadID)
	}
	return id
}

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "status",
			Description: "post the live service status report here",
			Timeout:     time.Minute,
			Handle:      a.cmdStatus,
		},
		{
			Name:        "unwatch",
			Description: "stop live updates of the report in this chat",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdUnwatch,
		},
		{
			Name:        "reports",
			Description: "list published reports",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdReports,
		},
	}
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	p, err := a.sched.Publish(ctx, targetID(req.Chat), req.Chat, a.Settings())
	if err != nil {
		msg := "status report failed, try again later"
		if errors.Is(err, status.ErrNotStarted) || errors.Is(err, status.ErrStopped) {
			msg = "status engine is not running"
		}
		_ = req.Reply(ctx, msg)
		return err
	}
	req.Logger.Debug("report published", logx.Int("message_id", p.MessageID))
	return nil
}

func (a *App) cmdUnwatch(ctx context.Context, req *router.Request) error {
	ok, err := a.sched.Unpublish(ctx, targetID(req.Chat))
	if err != nil {
		_ = req.Reply(ctx, "could not stop the report")
		return err
	}
	if !ok {
		return req.Reply(ctx, "no live report in this chat")
	}
	return req.Reply(ctx, "live updates stopped")
}

func (a *App) cmdReports(ctx context.Context, req *router.Request) error {
	ps, err := a.store.List(ctx)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		return req.Reply(ctx, "no published reports")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d report(s), %d live\n", len(ps), a.sched.Active())
	for _, p := range ps {
		fmt.Fprintf(&b, "%s msg %d since %s\n", p.TargetID, p.MessageID, p.PublishedAt.UTC().Format(time.RFC3339))
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}
