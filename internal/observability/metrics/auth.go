// Package metrics holds the gateway's metric names and tagging conventions.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/observability/statsd"
)

// Refresh outcomes.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshJoined  = "joined"
	RefreshGrace   = "grace"
	RefreshStale   = "stale"
	RefreshRemote  = "remote"
)

const (
	metricRefresh          = "auth.refresh"
	metricRefreshDuration  = "auth.refresh.duration"
	metricUpstream         = "proxy.upstream"
	metricUpstreamDuration = "proxy.upstream.duration"
	metricLoginThrottled   = "auth.login.throttled"
)

// EmitRefresh records the outcome of one AcquireAndRefresh call.
func EmitRefresh(sink statsd.Sink, result string, d time.Duration, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": result}
	if err != nil && result == RefreshFailure {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count(metricRefresh, 1, tags)
	if d > 0 {
		sink.Timing(metricRefreshDuration, d, CloneTags(tags))
	}
}

// UpstreamCall describes one upstream round trip issued by the auth proxy.
type UpstreamCall struct {
	Upstream string
	Status   int
	Attempt  int
	Duration time.Duration
	Err      error
}

// EmitUpstream records an upstream call. Network failures are tagged status_class=error.
func EmitUpstream(sink statsd.Sink, in UpstreamCall) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"upstream":     in.Upstream,
		"status_class": StatusClass(in.Status),
		"attempt":      strconv.Itoa(in.Attempt),
	}
	if in.Err != nil {
		tags["status_class"] = "error"
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count(metricUpstream, 1, tags)
	if in.Duration > 0 {
		sink.Timing(metricUpstreamDuration, in.Duration, CloneTags(tags))
	}
}

// EmitLoginThrottled records a login rejected by the local throttle.
func EmitLoginThrottled(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count(metricLoginThrottled, 1, nil)
}

// StatusClass maps 204 to "2xx" and so on; anything out of range is "unknown".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
