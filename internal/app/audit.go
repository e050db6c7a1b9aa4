package app

import (
	"context"
	"encoding/json"
	"time"

	"statusbot/internal/eventbus"
	"statusbot/internal/status"
	"statusbot/internal/storage"
	logx "statusbot/pkg/logx"
)

// startAudit records report lifecycle events in the store's audit log.
func (a *App) startAudit() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("audit", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.audit(c, e)
			}
		}
	})
}

func (a *App) audit(ctx context.Context, e eventbus.Event) {
	ev, ok := e.Data.(status.Event)
	if !ok {
		return
	}
	entry := storage.AuditEntry{
		At:       e.Time,
		ChatID:   ev.ChatID,
		Action:   e.Type,
		Target:   ev.TargetID,
		OK:       e.Type != status.EventOrphaned,
		Error:    ev.Reason,
		MetaJSON: auditMeta(ev),
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.store.AppendAudit(wctx, entry); err != nil {
		a.log.Debug("audit append failed", logx.String("type", e.Type), logx.Err(err))
	}
}

func auditMeta(ev status.Event) string {
	b, err := json.Marshal(map[string]int{"message_id": ev.MessageID})
	if err != nil {
		return ""
	}
	return string(b)
}
