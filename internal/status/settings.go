package status

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultRefreshInterval = time.Second
	MinRefreshInterval     = 250 * time.Millisecond
	DefaultChartInterval   = time.Minute
	DefaultCallTimeout     = 10 * time.Second
	DefaultFooter          = "Hex Status"

	maxFooterLen = 256
)

var (
	ErrInvalidSettings = errors.New("status: invalid settings")
	ErrNotStarted      = errors.New("status: engine not started")
	ErrStopped         = errors.New("status: engine stopped")
)

// Settings is the per-report snapshot taken when a report is published.
type Settings struct {
	// RefreshInterval is clamped to MinRefreshInterval.
	RefreshInterval time.Duration
	// ChartInterval is the base of the jittered chart cadence (base + rand[0, base)).
	ChartInterval time.Duration
	// CallTimeout bounds each collaborator call inside a tick.
	CallTimeout  time.Duration
	ThumbnailURL string
	FooterText   string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		RefreshInterval: DefaultRefreshInterval,
		ChartInterval:   DefaultChartInterval,
		CallTimeout:     DefaultCallTimeout,
	}
}

// Normalize applies the interval floor and fills missing durations.
func (s Settings) Normalize() Settings {
	if s.RefreshInterval < MinRefreshInterval {
		s.RefreshInterval = MinRefreshInterval
	}
	if s.ChartInterval <= 0 {
		s.ChartInterval = DefaultChartInterval
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = DefaultCallTimeout
	}
	s.ThumbnailURL = strings.TrimSpace(s.ThumbnailURL)
	s.FooterText = strings.TrimSpace(s.FooterText)
	return s
}

// Validate rejects settings a report cannot be published with.
func (s Settings) Validate() error {
	if s.ChartInterval < 0 {
		return fmt.Errorf("%w: chart interval must be >= 0", ErrInvalidSettings)
	}
	if s.CallTimeout < 0 {
		return fmt.Errorf("%w: call timeout must be >= 0", ErrInvalidSettings)
	}
	if raw := strings.TrimSpace(s.ThumbnailURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: thumbnail url %q must be an absolute http(s) url", ErrInvalidSettings, raw)
		}
	}
	if utf8.RuneCountInString(s.FooterText) > maxFooterLen {
		return fmt.Errorf("%w: footer text longer than %d characters", ErrInvalidSettings, maxFooterLen)
	}
	return nil
}

func (s Settings) footer() string {
	if s.FooterText == "" {
		return DefaultFooter
	}
	return s.FooterText
}
