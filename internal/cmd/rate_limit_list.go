package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/closetiq/closetiq/internal/output"
	"github.com/closetiq/closetiq/internal/store"
)

var rateLimitListPrefix string

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted rate limit windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{Prefix: strings.TrimSpace(rateLimitListPrefix)}
		if query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		return render(cmd, func(f output.Formatter) (string, error) { return f.FormatRateLimits(entries) })
	},
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List endpoints with matching prefix")
	addOutputFlags(rateLimitListCmd)
}
