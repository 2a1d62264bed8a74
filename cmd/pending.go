package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brightlane/crm-intake/pkg/db"
	"github.com/brightlane/crm-intake/pkg/intake"
)

var (
	pendingSkip   int
	pendingLimit  int
	pendingAsJSON bool
)

// PendingCmd lists intakes waiting for review.
var PendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List intakes waiting for review",
	Long: `List intake records in pending_review status, newest first.

Examples:
  intake pending
  intake pending --limit 10 --skip 20
  intake pending --output-json`,
	RunE: runPending,
}

func init() {
	PendingCmd.Flags().IntVar(&pendingSkip, "skip", 0, "number of records to skip")
	PendingCmd.Flags().IntVar(&pendingLimit, "limit", 50, "maximum records to return (1-100)")
	PendingCmd.Flags().BoolVar(&pendingAsJSON, "output-json", false, "print records as JSON")
}

func runPending(c *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "crm-intake")

	ctx := context.Background()
	pool, err := db.Connect(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := intake.NewPostgresRepository(pool, logger)
	page, err := repo.ListByStatus(ctx, intake.StatusPendingReview, pendingSkip, pendingLimit)
	if err != nil {
		return err
	}

	if pendingAsJSON {
		return printJSON(c.OutOrStdout(), page)
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "%d pending intake(s), showing %d\n\n", page.Total, len(page.Records))
	if len(page.Records) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSENDER\tSUBJECT\tINTENT\tCONFIDENCE\tTASKS\tDEALS\tCREATED")
	for _, record := range page.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d\t%d\t%s\n",
			record.ID,
			record.SenderEmail,
			truncate(record.Subject, 40),
			record.AI.Intent,
			record.ConfidenceScore,
			len(record.Recommendations.Tasks),
			len(record.Recommendations.Deals),
			record.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
