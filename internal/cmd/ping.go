package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/closetiq/closetiq/internal/observability"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe the backend health endpoint",
	Long:  "Call the backend health endpoint directly, outside the request queue and rate limit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		sess, err := openSession(cmd.Context(), cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer sess.Close()

		start := time.Now()
		healthy := sess.governor.CheckHealth(cmd.Context())
		elapsed := time.Since(start).Round(time.Millisecond)

		status := "healthy"
		if !healthy {
			status = "unreachable"
		}
		lines := []string{
			"Backend Health",
			"",
			"endpoint: " + sess.governor.Endpoint(),
			"status:   " + status,
			"elapsed:  " + elapsed.String(),
		}
		fmt.Print(ascii.DrawBox(strings.Join(lines, "\n"), 0))

		if !healthy {
			return fmt.Errorf("backend %s is not healthy", sess.governor.Endpoint())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
