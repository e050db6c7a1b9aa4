package status

import (
	"strings"
	"testing"
	"time"
)

func TestRenderTextAllUp(t *testing.T) {
	sum := Aggregate([]ServiceRecord{
		{Name: "api", IsUp: true, ResponseTimeMs: 42, LastCheckedAt: testNow, UptimeAccumulated: 99, CheckCount: 100},
	}, testNow)
	emb := TextRenderer{}.RenderText(sum, Settings{ThumbnailURL: "https://example.com/t.png"}, testNow)

	if emb.Color != "#00ff00" {
		t.Fatalf("color = %q", emb.Color)
	}
	if len(emb.Fields) != 4 {
		t.Fatalf("fields = %d", len(emb.Fields))
	}
	if emb.Fields[0].Value != "All Systems Operational" || !strings.HasPrefix(emb.Fields[0].Name, "🟢") {
		t.Fatalf("status field = %+v", emb.Fields[0])
	}
	if want := "`api` • 42ms • 99.00% uptime"; emb.Fields[1].Value != want {
		t.Fatalf("operational = %q, want %q", emb.Fields[1].Value, want)
	}
	if emb.Fields[2].Value != "No outages detected" {
		t.Fatalf("outages = %q", emb.Fields[2].Value)
	}
	if emb.Footer != DefaultFooter+" • Live Updates" {
		t.Fatalf("footer = %q", emb.Footer)
	}
	if emb.ThumbnailURL != "https://example.com/t.png" || !emb.Timestamp.Equal(testNow) {
		t.Fatalf("unexpected embed: %+v", emb)
	}
}

func TestRenderTextPartial(t *testing.T) {
	sum := Aggregate([]ServiceRecord{
		{Name: "api", IsUp: true, ResponseTimeMs: 100, LastCheckedAt: testNow},
		{Name: "db", IsUp: false, LastCheckedAt: testNow.Add(-(2*time.Hour + 5*time.Minute))},
	}, testNow)
	emb := TextRenderer{}.RenderText(sum, Settings{FooterText: "Ops"}, testNow)

	if emb.Color != "#ffaa00" || emb.Fields[0].Value != "Partial Outage (1/2 Online)" {
		t.Fatalf("unexpected status: %q %q", emb.Color, emb.Fields[0].Value)
	}
	if want := "`db` • Down for: 2h 5m"; emb.Fields[2].Value != want {
		t.Fatalf("outages = %q", emb.Fields[2].Value)
	}
	if !strings.Contains(emb.Fields[3].Value, "Response Time: `50ms`") {
		t.Fatalf("metrics = %q", emb.Fields[3].Value)
	}
	if emb.Footer != "Ops • Live Updates" {
		t.Fatalf("footer = %q", emb.Footer)
	}
}

func TestRenderTextAllDownAndEmpty(t *testing.T) {
	down := Aggregate([]ServiceRecord{{Name: "x"}}, testNow)
	if got := (TextRenderer{}).RenderText(down, Settings{}, testNow); got.Color != "#ff0000" || got.Fields[1].Value != "None" {
		t.Fatalf("all down embed: %+v", got)
	}
	empty := (TextRenderer{}).RenderText(Aggregate(nil, testNow), Settings{}, testNow)
	if empty.Fields[0].Value != "All Systems Operational" {
		t.Fatalf("empty status = %q", empty.Fields[0].Value)
	}
	if !strings.Contains(empty.Fields[3].Value, "System Uptime: `0.00%`") {
		t.Fatalf("empty metrics = %q", empty.Fields[3].Value)
	}
}

func TestDowntime(t *testing.T) {
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{0, "0m"},
		{59 * time.Minute, "59m"},
		{time.Hour, "1h 0m"},
		{25*time.Hour + 3*time.Minute, "25h 3m"},
		{-time.Minute, "0m"},
	}
	for _, tc := range cases {
		if got := Downtime(testNow.Add(-tc.ago), testNow); got != tc.want {
			t.Errorf("Downtime(%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}
	if got := Downtime(time.Time{}, testNow); got != "unknown" {
		t.Errorf("zero time = %q", got)
	}
}
