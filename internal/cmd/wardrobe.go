package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/observability"
	"github.com/closetiq/closetiq/internal/output"
	"github.com/closetiq/closetiq/internal/wardrobe"
)

var (
	classifyWardrobe string
	classifyAdd      bool

	outfitOccasion string
	outfitSeason   string
	outfitItems    []string
	outfitCount    int
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Classify a clothing photo",
	Long: `Upload a clothing photo to /api/classify. Large photos are downscaled first.
With --add the classified item is also added to the given wardrobe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if classifyAdd && strings.TrimSpace(classifyWardrobe) == "" {
			return fmt.Errorf("--add requires --wardrobe")
		}

		return withWardrobe(cmd, func(client *wardrobe.Client) (any, error) {
			if classifyAdd {
				return client.AddClassifiedClothing(cmd.Context(), classifyWardrobe, filepath.Base(path), data)
			}
			return client.ClassifyImage(cmd.Context(), filepath.Base(path), data)
		})
	},
}

var wardrobesCmd = &cobra.Command{
	Use:   "wardrobes",
	Short: "List the signed-in user's wardrobes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWardrobe(cmd, func(client *wardrobe.Client) (any, error) {
			return client.ListWardrobes(cmd.Context())
		})
	},
}

var outfitsCmd = &cobra.Command{
	Use:   "outfits",
	Short: "Generate outfit suggestions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWardrobe(cmd, func(client *wardrobe.Client) (any, error) {
			return client.GenerateOutfits(cmd.Context(), wardrobe.OutfitInput{
				Occasion: outfitOccasion,
				Season:   outfitSeason,
				ItemIDs:  outfitItems,
				Count:    outfitCount,
			})
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWardrobe(cmd, func(client *wardrobe.Client) (any, error) {
			return client.CurrentUser(cmd.Context())
		})
	},
}

// withWardrobe runs fn against a wardrobe client and renders its value in
// the uniform result shape. Failures render their user-facing message.
func withWardrobe(cmd *cobra.Command, fn func(*wardrobe.Client) (any, error)) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	sess, err := openSession(cmd.Context(), cfg, observability.CLILogger)
	if err != nil {
		return err
	}
	defer sess.Close()

	value, callErr := fn(sess.Wardrobe())
	res := &governor.Result{Success: callErr == nil}
	if callErr != nil {
		res.Error = callErr.Error()
		observability.CLILogger.Debug("Wardrobe call failed", zap.Error(callErr))
	} else {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		res.Data = data
	}

	if err := render(cmd, func(f output.Formatter) (string, error) { return f.FormatResult(res) }); err != nil {
		return err
	}
	return callErr
}

func init() {
	rootCmd.AddCommand(classifyCmd, wardrobesCmd, outfitsCmd, whoamiCmd)

	classifyCmd.Flags().StringVar(&classifyWardrobe, "wardrobe", "", "wardrobe ID for --add")
	classifyCmd.Flags().BoolVar(&classifyAdd, "add", false, "add the classified item to the wardrobe")

	outfitsCmd.Flags().StringVar(&outfitOccasion, "occasion", "", "occasion, e.g. casual or work (required)")
	outfitsCmd.Flags().StringVar(&outfitSeason, "season", "", "season (default spring)")
	outfitsCmd.Flags().StringSliceVar(&outfitItems, "item", nil, "restrict to clothing item IDs")
	outfitsCmd.Flags().IntVar(&outfitCount, "count", 0, "number of outfits (default 5)")
	_ = outfitsCmd.MarkFlagRequired("occasion")

	for _, c := range []*cobra.Command{classifyCmd, wardrobesCmd, outfitsCmd, whoamiCmd} {
		addOutputFlags(c)
	}
}
