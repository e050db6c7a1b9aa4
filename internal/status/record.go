package status

import "time"

const (
	// DegradedThresholdMs marks a service as degraded when its response time exceeds it.
	DegradedThresholdMs = 1000
	// RecentCheckWindow bounds ChecksLastHourCount.
	RecentCheckWindow = time.Hour
)

// ServiceRecord is the last known health of one monitored service.
type ServiceRecord struct {
	Name              string
	IsUp              bool
	ResponseTimeMs    int64
	LastCheckedAt     time.Time
	UptimeAccumulated float64
	CheckCount        int64
}

// UptimePct returns UptimeAccumulated / max(CheckCount, 1) * 100.
// A service that was never checked reports 0.
func (r ServiceRecord) UptimePct() float64 {
	checks := r.CheckCount
	if checks < 1 {
		checks = 1
	}
	return r.UptimeAccumulated / float64(checks) * 100
}

// Summary is derived from one snapshot of records and never mutated afterwards.
type Summary struct {
	ServicesUp          []ServiceRecord
	ServicesDown        []ServiceRecord
	TotalCount          int
	AvgResponseTimeMs   float64
	DegradedCount       int
	ChecksLastHourCount int
	AggregateUptimePct  float64
}

// Aggregate computes a Summary. It is pure: identical input yields identical output.
// Averages over an empty input are 0.
func Aggregate(records []ServiceRecord, now time.Time) Summary {
	sum := Summary{
		ServicesUp:   make([]ServiceRecord, 0, len(records)),
		ServicesDown: make([]ServiceRecord, 0),
		TotalCount:   len(records),
	}

	var totalResponse, totalUptime float64
	for _, r := range records {
		if r.IsUp {
			sum.ServicesUp = append(sum.ServicesUp, r)
		} else {
			sum.ServicesDown = append(sum.ServicesDown, r)
		}
		totalResponse += float64(r.ResponseTimeMs)
		totalUptime += r.UptimePct()
		if r.ResponseTimeMs > DegradedThresholdMs {
			sum.DegradedCount++
		}
		if now.Sub(r.LastCheckedAt) < RecentCheckWindow {
			sum.ChecksLastHourCount++
		}
	}

	if sum.TotalCount > 0 {
		sum.AvgResponseTimeMs = totalResponse / float64(sum.TotalCount)
		sum.AggregateUptimePct = totalUptime / float64(sum.TotalCount)
	}
	return sum
}

// Classification is the overall state shown in a report.
type Classification int

const (
	AllUp Classification = iota
	Partial
	AllDown
)

func (c Classification) String() string {
	switch c {
	case AllUp:
		return "all_up"
	case AllDown:
		return "all_down"
	default:
		return "partial"
	}
}

// Classify checks "all up" first, so an empty summary is AllUp.
func (s Summary) Classify() Classification {
	up := len(s.ServicesUp)
	switch {
	case up == s.TotalCount:
		return AllUp
	case up == 0:
		return AllDown
	default:
		return Partial
	}
}
