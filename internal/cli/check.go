package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/engine"
	"github.com/quietroom/warden/internal/model"
	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/profile"
)

var (
	checkTrack    string
	checkConfig   string
	checkDenylist string
	checkUser     string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkTrack, "track", "strict", "Policy track (permissive|strict)")
	checkCmd.Flags().StringVar(&checkConfig, "config", "", "Path to moderation config YAML (optional)")
	checkCmd.Flags().StringVar(&checkDenylist, "denylist", "", "Path to denylist YAML (optional)")
	checkCmd.Flags().StringVar(&checkUser, "user", "check-user", "User ID for the throwaway profile")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [message...]",
	Short: "Evaluate a message against the local rules",
	Long: "Runs one message through the moderation pipeline with a throwaway\n" +
		"in-memory profile and no remote classifier. Useful for tuning the\n" +
		"denylist and config before deploying them.\n\n" +
		"Exit code 0 if the message is allowed, 1 if blocked.",
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	track := model.Track(checkTrack)
	if track != model.TrackPermissive && track != model.TrackStrict {
		return fmt.Errorf("unknown track %q", checkTrack)
	}

	cfg, err := policy.LoadConfig(checkConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dl, err := denylist.Load(checkDenylist)
	if err != nil {
		return fmt.Errorf("failed to load denylist: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Policy:    cfg,
		Denylist:  dl,
		Store:     profile.NewMemoryStore(),
		AppealDir: os.TempDir() + "/warden-check-appeals",
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	content := strings.Join(args, " ")
	res, err := eng.Evaluate(context.Background(), checkUser, content, track, model.EvalContext{})
	if err != nil {
		return err
	}

	if checkFormat == "json" {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		verdict := "ALLOWED"
		if !res.Allowed {
			verdict = "BLOCKED"
		}
		fmt.Printf("%s  category=%s confidence=%.2f\n", verdict, res.Category, res.Confidence)
		for _, reason := range res.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		if len(res.Flags) > 0 {
			fmt.Printf("  flags: %v\n", res.Flags)
		}
		if res.Enforcement.Action != "" && res.Enforcement.Action != model.ActionAllow {
			fmt.Printf("  enforcement: %s\n", res.Enforcement.Action)
		}
	}

	if !res.Allowed {
		os.Exit(1)
	}
	return nil
}
