package output

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/store"
)

// statusView is the serialized form of governor.QueueStatus with the reset
// delay in milliseconds.
type statusView struct {
	PendingRequests int   `json:"pending_requests" yaml:"pending_requests"`
	RetryWaiting    int   `json:"retry_waiting" yaml:"retry_waiting"`
	InFlightShared  int   `json:"in_flight_shared" yaml:"in_flight_shared"`
	Dispatching     bool  `json:"dispatching" yaml:"dispatching"`
	RequestCount    int   `json:"request_count" yaml:"request_count"`
	MaxPerWindow    int   `json:"max_per_window" yaml:"max_per_window"`
	TimeToResetMS   int64 `json:"time_to_reset_ms" yaml:"time_to_reset_ms"`
	Closed          bool  `json:"closed" yaml:"closed"`
}

func newStatusView(s governor.QueueStatus) statusView {
	return statusView{
		PendingRequests: s.PendingRequests,
		RetryWaiting:    s.RetryWaiting,
		InFlightShared:  s.InFlightShared,
		Dispatching:     s.Dispatching,
		RequestCount:    s.RequestCount,
		MaxPerWindow:    s.MaxPerWindow,
		TimeToResetMS:   s.TimeToReset.Milliseconds(),
		Closed:          s.Closed,
	}
}

type rateLimitView struct {
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	RequestCount int    `json:"request_count" yaml:"request_count"`
	WindowStart  string `json:"window_start" yaml:"window_start"`
	LastRequest  string `json:"last_request,omitempty" yaml:"last_request,omitempty"`
}

func newRateLimitViews(entries []store.RateLimitEntry) []rateLimitView {
	views := make([]rateLimitView, 0, len(entries))
	for _, entry := range entries {
		view := rateLimitView{
			Endpoint:     entry.Endpoint,
			RequestCount: entry.State.RequestCount,
			WindowStart:  formatTime(entry.State.WindowStart),
		}
		if !entry.State.LastRequest.IsZero() {
			view.LastRequest = formatTime(entry.State.LastRequest)
		}
		views = append(views, view)
	}
	return views
}

// JSONFormatter renders values as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatResult(result *governor.Result) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.marshal(result)
}

func (f *JSONFormatter) FormatStatus(status governor.QueueStatus) (string, error) {
	return f.marshal(newStatusView(status))
}

func (f *JSONFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	return f.marshal(newRateLimitViews(entries))
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// YAMLFormatter renders values as YAML. Result data is decoded first so
// the payload renders as YAML rather than an embedded JSON string.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatResult(result *governor.Result) (string, error) {
	if result == nil {
		return "", nil
	}

	doc := map[string]any{"success": result.Success}
	if len(result.Data) > 0 {
		var data any
		if err := json.Unmarshal(result.Data, &data); err != nil {
			return "", err
		}
		doc["data"] = data
	}
	if result.Message != "" {
		doc["message"] = result.Message
	}
	if result.Error != "" {
		doc["error"] = result.Error
	}
	return marshalYAML(doc)
}

func (f *YAMLFormatter) FormatStatus(status governor.QueueStatus) (string, error) {
	return marshalYAML(newStatusView(status))
}

func (f *YAMLFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	return marshalYAML(newRateLimitViews(entries))
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
