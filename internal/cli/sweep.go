package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/sweep"
)

var (
	sweepConfig string
	sweepStore  string
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepConfig, "config", "", "Path to moderation config YAML")
	sweepCmd.Flags().StringVar(&sweepStore, "store", "memory", "Profile store (memory, sqlite:<path>, redis://<addr>)")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one maintenance pass over the profile store",
	Long: "Prunes expired restrictions and shadow bans, drops violations past the\n" +
		"retention window, and evicts inactive profiles. Safe to run repeatedly;\n" +
		"a second pass over the same store is a no-op.",
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := policy.LoadConfig(sweepConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(sweepStore)
	if err != nil {
		return err
	}
	defer store.Close()

	sw := sweep.New(store, cfg.Sweep)
	sum, err := sw.SweepOnce(context.Background(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("swept %d profiles: %d restrictions pruned, %d shadow bans cleared, %d violations pruned, %d profiles evicted\n",
		sum.ProfilesSeen, sum.RestrictionsPruned, sum.ShadowBansCleared, sum.ViolationsPruned, sum.ProfilesEvicted)
	return nil
}
