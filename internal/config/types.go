package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Empty strings fall
// back to the documented defaults.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Status   StatusConfig   `json:"status"`
	Monitor  MonitorConfig  `json:"monitor"`
	Ops      OpsConfig      `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id the log sink posts to.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// SendRate caps outgoing API calls per second (default 25).
	SendRate float64 `json:"send_rate,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the report/service store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./statusbot.db", "busy_timeout": "2s" }
//
// Omitting the section (or driver "none") keeps everything in memory.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// StatusConfig holds the defaults snapshotted into every newly published report.
//
// Defaults:
//   - refresh_interval: "1s" (floor 250ms)
//   - chart_interval: "60s" (jittered per report)
//   - call_timeout: "10s"
//   - resume_on_start: true
type StatusConfig struct {
	RefreshInterval string `json:"refresh_interval,omitempty"`
	ChartInterval   string `json:"chart_interval,omitempty"`
	CallTimeout     string `json:"call_timeout,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	FooterText      string `json:"footer_text,omitempty"`
	ResumeOnStart   *bool  `json:"resume_on_start,omitempty"`
}

// Resume reports whether stored reports are re-attached at startup.
func (s StatusConfig) Resume() bool {
	return s.ResumeOnStart == nil || *s.ResumeOnStart
}

type MonitorConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec ("*/30 * * * * *", "@every 30s").
	Schedule string           `json:"schedule,omitempty"`
	Timeout  string           `json:"timeout,omitempty"`
	Services []MonitorService `json:"services,omitempty"`
}

// MonitorService is one probed endpoint. URLs with the tcp:// scheme are
// dialed; everything else gets an HTTP GET.
type MonitorService struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	ExpectMin int    `json:"expect_min,omitempty"`
	ExpectMax int    `json:"expect_max,omitempty"`
}

// OpsConfig controls the optional operations HTTP server (pprof, /metrics, /healthz).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
