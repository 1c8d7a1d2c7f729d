package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quietroom/warden/internal/appeal"
	"github.com/quietroom/warden/internal/model"
)

var (
	appealsDir      string
	appealsStore    string
	appealsReviewer string
	appealsReason   string
)

func init() {
	rootCmd.AddCommand(appealsCmd)
	appealsCmd.PersistentFlags().StringVar(&appealsDir, "appeals-dir", "", "Directory for the appeals ledger")
	appealsCmd.PersistentFlags().StringVar(&appealsStore, "store", "memory", "Profile store (memory, sqlite:<path>, redis://<addr>)")
	appealsCmd.AddCommand(appealsListCmd)
	appealsCmd.AddCommand(appealsApproveCmd)
	appealsCmd.AddCommand(appealsDenyCmd)
	appealsApproveCmd.Flags().StringVar(&appealsReviewer, "reviewer", "", "Reviewer ID (required)")
	appealsApproveCmd.Flags().StringVar(&appealsReason, "reason", "", "Decision reason")
	appealsApproveCmd.MarkFlagRequired("reviewer")
	appealsDenyCmd.Flags().StringVar(&appealsReviewer, "reviewer", "", "Reviewer ID (required)")
	appealsDenyCmd.Flags().StringVar(&appealsReason, "reason", "", "Decision reason")
	appealsDenyCmd.MarkFlagRequired("reviewer")
}

var appealsCmd = &cobra.Command{
	Use:   "appeals",
	Short: "Review user appeals",
	Long:  "Lists and adjudicates appeals against moderation enforcements.\nApproving an appeal lifts the matching restriction and restores trust.",
}

var appealsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List appeals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := ledger.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No appeals.")
			return nil
		}
		for _, a := range list {
			fmt.Printf("%s  %-12s  user=%s violation=%s  %s\n",
				a.SubmittedAt.Format("2006-01-02 15:04"), a.Status, a.UserID, a.ViolationID, a.Text)
		}
		return nil
	},
}

var appealsApproveCmd = &cobra.Command{
	Use:   "approve <appeal-id>",
	Short: "Approve an appeal and lift the restriction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewAppeal(args[0], model.AppealApproved)
	},
}

var appealsDenyCmd = &cobra.Command{
	Use:   "deny <appeal-id>",
	Short: "Deny an appeal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewAppeal(args[0], model.AppealDenied)
	},
}

func reviewAppeal(appealID string, decision model.AppealResult) error {
	ledger, store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	if !ledger.Review(context.Background(), appealID, appealsReviewer, decision, appealsReason) {
		fmt.Fprintf(os.Stderr, "appeal %s not found or already decided\n", appealID)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", appealID, decision)
	return nil
}

func openLedger() (*appeal.Ledger, interface{ Close() error }, error) {
	store, err := openStore(appealsStore)
	if err != nil {
		return nil, nil, err
	}

	dir := appealsDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = home + "/.warden/appeals"
	}

	ledger, err := appeal.NewLedger(dir, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return ledger, store, nil
}
