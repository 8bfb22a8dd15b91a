package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/output"
)

var statusGateway string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and window status of a running gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := strings.TrimRight(statusGateway, "/")
		if target == "" {
			cfg, err := loadedConfig()
			if err != nil {
				return err
			}
			target = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		}

		status, err := fetchGatewayStatus(cmd, target+"/v1/governor/status")
		if err != nil {
			return err
		}
		return render(cmd, func(f output.Formatter) (string, error) { return f.FormatStatus(status) })
	},
}

func fetchGatewayStatus(cmd *cobra.Command, url string) (governor.QueueStatus, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return governor.QueueStatus{}, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return governor.QueueStatus{}, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return governor.QueueStatus{}, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var body struct {
		governor.QueueStatus
		TimeToResetMS int64 `json:"time_to_reset_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return governor.QueueStatus{}, fmt.Errorf("decode status: %w", err)
	}
	status := body.QueueStatus
	status.TimeToReset = time.Duration(body.TimeToResetMS) * time.Millisecond
	return status, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusGateway, "gateway", "", "gateway base URL (default from server.host/port)")
	addOutputFlags(statusCmd)
}
