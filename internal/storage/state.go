package storage

import (
	"sort"
	"time"

	"statusbot/internal/status"
)

type serviceRow struct {
	rec status.ServiceRecord
	url string
}

// state is the in-memory model shared by the memory and file drivers.
// Callers hold the driver lock.
type state struct {
	reports  map[string]status.Pointer
	services []serviceRow
	index    map[string]int
}

func newState() *state {
	return &state{reports: map[string]status.Pointer{}, index: map[string]int{}}
}

func (s *state) upsert(targetID string, p status.Pointer) {
	p.TargetID = targetID
	s.reports[targetID] = p
}

func (s *state) deleteMatching(targetID string, messageID int) bool {
	p, ok := s.reports[targetID]
	if !ok || p.MessageID != messageID {
		return false
	}
	delete(s.reports, targetID)
	return true
}

func (s *state) touch(targetID string, messageID int, at time.Time) bool {
	p, ok := s.reports[targetID]
	if !ok || p.MessageID != messageID {
		return false
	}
	p.PublishedAt = at
	s.reports[targetID] = p
	return true
}

func (s *state) list() []status.Pointer {
	out := make([]status.Pointer, 0, len(s.reports))
	for _, p := range s.reports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

func (s *state) records() []status.ServiceRecord {
	out := make([]status.ServiceRecord, len(s.services))
	for i, row := range s.services {
		out[i] = row.rec
	}
	return out
}

func (s *state) upsertService(name, url string) bool {
	if i, ok := s.index[name]; ok {
		if s.services[i].url == url {
			return false
		}
		s.services[i].url = url
		return true
	}
	s.index[name] = len(s.services)
	s.services = append(s.services, serviceRow{rec: status.ServiceRecord{Name: name}, url: url})
	return true
}

func (s *state) recordCheck(name string, up bool, responseMs int64, at time.Time) {
	if _, ok := s.index[name]; !ok {
		s.upsertService(name, "")
	}
	r := &s.services[s.index[name]].rec
	r.IsUp = up
	r.ResponseTimeMs = responseMs
	r.LastCheckedAt = at
	r.CheckCount++
	if up {
		r.UptimeAccumulated++
	}
}

func (s *state) prune(keep []string) int {
	want := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		want[k] = struct{}{}
	}
	kept := s.services[:0]
	removed := 0
	for _, row := range s.services {
		if _, ok := want[row.rec.Name]; ok {
			kept = append(kept, row)
		} else {
			removed++
		}
	}
	s.services = kept
	s.index = make(map[string]int, len(kept))
	for i, row := range kept {
		s.index[row.rec.Name] = i
	}
	return removed
}
