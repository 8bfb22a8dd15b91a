// Package output renders governor results, queue status and rate-limit
// state for the CLI.
package output

import (
	"fmt"
	"strings"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/store"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formatter renders the values the CLI prints.
type Formatter interface {
	FormatResult(result *governor.Result) (string, error)
	FormatStatus(status governor.QueueStatus) (string, error)
	FormatRateLimits(entries []store.RateLimitEntry) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}
