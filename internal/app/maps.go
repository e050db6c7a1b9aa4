package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"statusbot/internal/config"
	"statusbot/internal/monitor"
	"statusbot/internal/observability/ops"
	"statusbot/internal/status"
	"statusbot/internal/storage"
	"statusbot/internal/transport/telegram"
	logx "statusbot/pkg/logx"
)

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	if cfg.Telegram.SendRate < 0 {
		return telegram.Config{}, fmt.Errorf("telegram.send_rate must be >= 0")
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: poll,
		SendRate:    cfg.Telegram.SendRate,
	}, nil
}

// mapLogConfig resolves the chat sink target from telegram.group_log.
func mapLogConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if raw := strings.TrimSpace(cfg.Telegram.GroupLog); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lc.Chat.ChatID = id
		}
	}
	// no target, no chat sink
	if lc.Chat.ChatID == 0 {
		lc.Chat.Enabled = false
	}
	return lc
}

// mapStorageConfig maps the storage section. An omitted section is the
// in-memory driver.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: storage.DriverMemory}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", storage.DriverMemory:
		return storage.Config{Driver: storage.DriverMemory}, nil
	case storage.DriverFile:
		return storage.Config{Driver: storage.DriverFile, Path: path}, nil
	case storage.DriverSQLite, "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: storage.DriverSQLite, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapStatusSettings builds the settings snapshot for new reports. An omitted
// refresh interval means the default; an explicit "0s" is clamped to the floor.
func mapStatusSettings(cfg *config.Config) (status.Settings, error) {
	sc := cfg.Status
	set := status.DefaultSettings()

	refresh, ok, err := config.ParseDurationOptional("status.refresh_interval", sc.RefreshInterval)
	if err != nil {
		return status.Settings{}, err
	}
	if ok {
		set.RefreshInterval = refresh
	}
	if set.ChartInterval, err = config.ParseDurationOrDefault("status.chart_interval", sc.ChartInterval, status.DefaultChartInterval); err != nil {
		return status.Settings{}, err
	}
	if set.CallTimeout, err = config.ParseDurationOrDefault("status.call_timeout", sc.CallTimeout, status.DefaultCallTimeout); err != nil {
		return status.Settings{}, err
	}
	set.ThumbnailURL = sc.ThumbnailURL
	set.FooterText = sc.FooterText
	if err := set.Validate(); err != nil {
		return status.Settings{}, err
	}
	return set.Normalize(), nil
}

func mapMonitorConfig(cfg *config.Config) (monitor.Config, error) {
	mc := cfg.Monitor
	timeout, err := config.ParseDurationOrDefault("monitor.timeout", mc.Timeout, monitor.DefaultTimeout)
	if err != nil {
		return monitor.Config{}, err
	}
	seen := make(map[string]struct{}, len(mc.Services))
	targets := make([]monitor.Target, 0, len(mc.Services))
	for i, s := range mc.Services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return monitor.Config{}, fmt.Errorf("monitor.services[%d].name is required", i)
		}
		if strings.TrimSpace(s.URL) == "" {
			return monitor.Config{}, fmt.Errorf("monitor.services[%d].url is required", i)
		}
		if _, dup := seen[name]; dup {
			return monitor.Config{}, fmt.Errorf("monitor.services: duplicate name %q", name)
		}
		if s.ExpectMin < 0 || s.ExpectMax < 0 || (s.ExpectMax > 0 && s.ExpectMax < s.ExpectMin) {
			return monitor.Config{}, fmt.Errorf("monitor.services[%d]: invalid expected status range", i)
		}
		seen[name] = struct{}{}
		targets = append(targets, monitor.Target{
			Name:      name,
			URL:       strings.TrimSpace(s.URL),
			ExpectMin: s.ExpectMin,
			ExpectMax: s.ExpectMax,
		})
	}
	return monitor.Config{
		Enabled:  mc.Enabled,
		Schedule: strings.TrimSpace(mc.Schedule),
		Timeout:  timeout,
		Targets:  targets,
	}, nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		PprofPrefix:   oc.PprofPrefix,
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// validateConfig rejects a config before it is committed, at boot or on reload.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", config.EnvTelegramToken)
	}
	if _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStatusSettings(cfg); err != nil {
		return err
	}
	if _, err := mapMonitorConfig(cfg); err != nil {
		return err
	}
	if _, err := mapOpsConfig(cfg); err != nil {
		return err
	}
	return nil
}
