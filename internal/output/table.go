package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/store"
)

// TableFormatter renders values as ASCII tables.
type TableFormatter struct{}

// FormatResult shows the outcome row and, for object payloads, one row per
// top-level field.
func (f *TableFormatter) FormatResult(result *governor.Result) (string, error) {
	if result == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"success", strconv.FormatBool(result.Success)})
	if result.Message != "" {
		t.AppendRow(table.Row{"message", result.Message})
	}
	if result.Error != "" {
		t.AppendRow(table.Row{"error", result.Error})
	}

	if len(result.Data) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(result.Data, &fields); err == nil {
			keys := make([]string, 0, len(fields))
			for key := range fields {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				t.AppendRow(table.Row{"data." + key, compact(fields[key])})
			}
		} else {
			t.AppendRow(table.Row{"data", compact(result.Data)})
		}
	}

	return t.Render(), nil
}

func (f *TableFormatter) FormatStatus(status governor.QueueStatus) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"pending", status.PendingRequests},
		{"retry waiting", status.RetryWaiting},
		{"in-flight shared", status.InFlightShared},
		{"dispatching", status.Dispatching},
		{"window", fmt.Sprintf("%d/%d", status.RequestCount, status.MaxPerWindow)},
		{"resets in", status.TimeToReset.Round(time.Millisecond).String()},
		{"closed", status.Closed},
	})
	return t.Render(), nil
}

func (f *TableFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Endpoint", "Requests", "Window Start", "Last Request"})
	for _, entry := range entries {
		last := "-"
		if !entry.State.LastRequest.IsZero() {
			last = formatTime(entry.State.LastRequest)
		}
		t.AppendRow(table.Row{
			entry.Endpoint,
			entry.State.RequestCount,
			formatTime(entry.State.WindowStart),
			last,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d endpoint(s)", len(entries)), "", ""})
	return t.Render(), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	value := buf.String()
	if unquoted, err := strconv.Unquote(value); err == nil {
		return unquoted
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
