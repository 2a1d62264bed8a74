package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brightlane/crm-intake/pkg/crm"
	"github.com/brightlane/crm-intake/pkg/db"
	"github.com/brightlane/crm-intake/pkg/eml"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/intake/ai"
	"github.com/brightlane/crm-intake/pkg/intake/events"
	"github.com/brightlane/crm-intake/pkg/logging"
)

var (
	processEmlPath  string
	processJSONPath string
	processNoStore  bool
)

// ProcessCmd runs the intake pipeline for a single email.
var ProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one inbound email",
	Long: `Process one inbound email through the intake pipeline.

The email is read from an RFC 5322 .eml file (--eml), a JSON payload file
(--json), or stdin when neither flag is given. The resulting intake record is
printed as JSON.

With --no-store the record is kept in memory only, useful for trying out a
prompt or provider without touching the database.

Examples:
  intake process --eml message.eml
  intake process --json payload.json
  cat payload.json | intake process`,
	RunE: runProcess,
}

func init() {
	ProcessCmd.Flags().StringVar(&processEmlPath, "eml", "", "path to an RFC 5322 .eml file")
	ProcessCmd.Flags().StringVar(&processJSONPath, "json", "", "path to a raw email JSON payload")
	ProcessCmd.Flags().BoolVar(&processNoStore, "no-store", false, "do not persist the record")
}

func runProcess(c *cobra.Command, args []string) error {
	if processEmlPath != "" && processJSONPath != "" {
		return fmt.Errorf("--eml and --json are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "crm-intake")

	raw, err := readRawEmail(c.InOrStdin())
	if err != nil {
		return err
	}

	ctx := context.Background()

	var (
		repo   intake.Repository
		lookup crm.Lookup
	)
	if processNoStore {
		repo = intake.NewMemoryRepository()
		lookup = crm.NopLookup{}
	} else {
		pool, err := db.Connect(ctx, &cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
		repo = intake.NewPostgresRepository(pool, logger)
		lookup = crm.NewPostgresLookup(pool, logger)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	pipeline := intake.NewPipeline(intake.PipelineDeps{
		Lookup:     lookup,
		Analyzer:   ai.NewEngine(provider, logger),
		Policy:     intake.Policy{AutoApproveThreshold: cfg.Policy.AutoApproveThreshold},
		Repository: repo,
		Publisher:  events.NewLogPublisher(logger),
		Logger:     logger,
	})

	record, err := pipeline.Process(ctx, raw)
	if err != nil {
		return err
	}

	logger.Info("email processed",
		logging.F("intake_id", record.ID),
		logging.F("status", string(record.Status)),
		logging.F("confidence", record.ConfidenceScore))
	return printJSON(c.OutOrStdout(), record)
}

// readRawEmail reads the raw email payload from the selected source.
func readRawEmail(stdin io.Reader) (intake.RawEmail, error) {
	if processEmlPath != "" {
		result, err := eml.ParseFile(processEmlPath)
		if err != nil {
			return intake.RawEmail{}, fmt.Errorf("parsing %s: %w", processEmlPath, err)
		}
		for _, warning := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
		}
		return result.Email, nil
	}

	var data []byte
	var err error
	if processJSONPath != "" {
		data, err = os.ReadFile(processJSONPath)
		if err != nil {
			return intake.RawEmail{}, fmt.Errorf("reading %s: %w", processJSONPath, err)
		}
	} else {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return intake.RawEmail{}, fmt.Errorf("reading stdin: %w", err)
		}
	}

	var raw intake.RawEmail
	if err := json.Unmarshal(data, &raw); err != nil {
		return intake.RawEmail{}, fmt.Errorf("parsing raw email payload: %w", err)
	}
	return raw, nil
}
