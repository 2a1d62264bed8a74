package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brightlane/crm-intake/pkg/db"
	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/intake/events"
)

var (
	decideTasks []int
	decideDeals []int
	decideBy    string
)

// DecideCmd applies an operator decision to a pending intake.
var DecideCmd = &cobra.Command{
	Use:   "decide <intake-id>",
	Short: "Apply a decision to a pending intake",
	Long: `Apply an operator decision to a pending intake.

The approved recommendation indices refer to positions in the intake's task
and deal recommendation lists, as shown by 'intake pending --output-json'.
Approving nothing rejects the intake.

Examples:
  intake decide 9f1c... --tasks 0,1 --deals 0
  intake decide 9f1c... --tasks 0 --by ops@example.com
  intake decide 9f1c...            (reject)`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

func init() {
	DecideCmd.Flags().IntSliceVar(&decideTasks, "tasks", nil, "approved task recommendation indices")
	DecideCmd.Flags().IntSliceVar(&decideDeals, "deals", nil, "approved deal recommendation indices")
	DecideCmd.Flags().StringVar(&decideBy, "by", "", "who is making the decision")
}

func runDecide(c *cobra.Command, args []string) error {
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

	workflow := intake.NewDecisionWorkflow(
		intake.NewPostgresRepository(pool, logger),
		intake.NewStubTaskService(logger),
		intake.NewStubDealService(logger),
		events.NewLogPublisher(logger),
		nil,
		logger,
	)

	record, err := workflow.Submit(ctx, intake.DecisionRequest{
		IntakeID:            args[0],
		ApprovedTaskIndices: decideTasks,
		ApprovedDealIndices: decideDeals,
		DecidedBy:           decideBy,
	})
	if err != nil {
		if pde, ok := cierrors.IsPartialDispatch(err); ok {
			fmt.Fprintf(c.OutOrStdout(),
				"Partial dispatch: created tasks %v and deals %v before %s %d failed.\n"+
					"The intake stays pending; retry with the remaining indices.\n",
				pde.SucceededTaskIndices, pde.SucceededDealIndices, pde.FailedKind, pde.FailedIndex)
		}
		return err
	}

	fmt.Fprintf(c.OutOrStdout(), "Intake %s is now %s\n", record.ID, record.Status)
	if record.Decision != nil {
		if len(record.Decision.CreatedTaskIDs) > 0 {
			fmt.Fprintf(c.OutOrStdout(), "Created tasks: %v\n", record.Decision.CreatedTaskIDs)
		}
		if len(record.Decision.CreatedDealIDs) > 0 {
			fmt.Fprintf(c.OutOrStdout(), "Created deals: %v\n", record.Decision.CreatedDealIDs)
		}
	}
	return nil
}
