package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/closetiq/closetiq/internal/observability"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect or clear the cached identity token",
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached token, refreshing it if needed",
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

		tokens := sess.governor.Tokens()
		if tokens.Token(cmd.Context()) == "" {
			printf("No identity token available (credentials.source=%s)\n", cfg.Credentials.Source)
			return nil
		}

		cred := tokens.Peek()
		if cred == nil {
			return fmt.Errorf("token cache returned no credential")
		}
		printf("Token:      %s\n", maskToken(cred.Token))
		printf("Expires at: %s\n", cred.ExpiresAt.UTC().Format(time.RFC3339))
		printf("Expires in: %s\n", time.Until(cred.ExpiresAt).Round(time.Second))
		printf("Store:      %s\n", cfg.Credentials.Store)
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached token",
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

		sess.governor.Tokens().Invalidate(cmd.Context())
		printf("Cleared cached token for %s\n", sess.governor.Endpoint())
		return nil
	},
}

// maskToken keeps the first and last four characters.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	tokenCmd.AddCommand(tokenShowCmd, tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}
