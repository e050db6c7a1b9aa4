package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"statusbot/internal/status"
	logx "statusbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Upsert(ctx context.Context, targetID string, p status.Pointer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(target_id, chat_id, thread_id, message_id, published_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(target_id) DO UPDATE SET
		   chat_id=excluded.chat_id, thread_id=excluded.thread_id,
		   message_id=excluded.message_id, published_at=excluded.published_at`,
		targetID, p.ChatID, p.ThreadID, p.MessageID, p.PublishedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeleteByTargetAndMessage(ctx context.Context, targetID string, messageID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE target_id = ? AND message_id = ?`, targetID, messageID)
	return err
}

func (s *sqliteStore) Find(ctx context.Context, targetID string) (status.Pointer, bool, error) {
	p := status.Pointer{TargetID: targetID}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, thread_id, message_id, published_at FROM reports WHERE target_id = ?`, targetID,
	).Scan(&p.ChatID, &p.ThreadID, &p.MessageID, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Pointer{}, false, nil
	}
	if err != nil {
		return status.Pointer{}, false, err
	}
	p.PublishedAt = time.UnixMilli(ms)
	return p, true, nil
}

func (s *sqliteStore) Touch(ctx context.Context, targetID string, messageID int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reports SET published_at = ? WHERE target_id = ? AND message_id = ?`,
		at.UnixMilli(), targetID, messageID,
	)
	return err
}

func (s *sqliteStore) List(ctx context.Context) ([]status.Pointer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, chat_id, thread_id, message_id, published_at FROM reports ORDER BY target_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []status.Pointer
	for rows.Next() {
		var p status.Pointer
		var ms int64
		if err := rows.Scan(&p.TargetID, &p.ChatID, &p.ThreadID, &p.MessageID, &ms); err != nil {
			return nil, err
		}
		p.PublishedAt = time.UnixMilli(ms)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListServices(ctx context.Context) ([]status.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, is_up, response_ms, last_checked_at, uptime_accumulated, check_count
		 FROM services ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []status.ServiceRecord{}
	for rows.Next() {
		var r status.ServiceRecord
		var checked int64
		if err := rows.Scan(&r.Name, &r.IsUp, &r.ResponseTimeMs, &checked, &r.UptimeAccumulated, &r.CheckCount); err != nil {
			return nil, err
		}
		if checked > 0 {
			r.LastCheckedAt = time.UnixMilli(checked)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertService(ctx context.Context, name, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO services(name, url) VALUES(?,?)
		 ON CONFLICT(name) DO UPDATE SET url=excluded.url`,
		name, url,
	)
	return err
}

func (s *sqliteStore) PruneServices(ctx context.Context, keep []string) (int, error) {
	query := `DELETE FROM services`
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		query += ` WHERE name NOT IN (?` + strings.Repeat(",?", len(keep)-1) + `)`
		for _, k := range keep {
			args = append(args, k)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) RecordCheck(ctx context.Context, name string, up bool, responseMs int64, at time.Time) error {
	inc := 0.0
	if up {
		inc = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO services(name, is_up, response_ms, last_checked_at, uptime_accumulated, check_count)
		 VALUES(?,?,?,?,?,1)
		 ON CONFLICT(name) DO UPDATE SET
		   is_up=excluded.is_up, response_ms=excluded.response_ms, last_checked_at=excluded.last_checked_at,
		   uptime_accumulated=services.uptime_accumulated + excluded.uptime_accumulated,
		   check_count=services.check_count + 1`,
		name, up, responseMs, at.UnixMilli(), inc,
	)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, thread_id, action, target, ok, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID, e.ThreadID,
		e.Action, nullStr(e.Target), e.OK, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
