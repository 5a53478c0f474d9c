package statsd

import (
	"maps"
	"sync"
	"time"
)

// Sample is one metric captured by a Recorder.
type Sample struct {
	Name     string
	Value    int64
	Duration time.Duration
	Tags     map[string]string
}

// Recorder is an in-memory Sink for tests and for the admin CLI's dry runs.
type Recorder struct {
	mu      sync.Mutex
	counts  []Sample
	timings []Sample
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, Sample{Name: name, Value: value, Tags: maps.Clone(tags)})
}

func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, Sample{Name: name, Duration: value, Tags: maps.Clone(tags)})
}

// Total sums counter values for name whose tags include every entry of match.
func (r *Recorder) Total(name string, match map[string]string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, s := range r.counts {
		if s.Name == name && tagsMatch(s.Tags, match) {
			total += s.Value
		}
	}
	return total
}

// Timings returns the timing samples recorded for name.
func (r *Recorder) Timings(name string) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sample
	for _, s := range r.timings {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func tagsMatch(tags, match map[string]string) bool {
	for k, v := range match {
		if tags[k] != v {
			return false
		}
	}
	return true
}
