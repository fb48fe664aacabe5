package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/fetcher"
	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/reconcile"
	"github.com/kairo-crm/intake/internal/resilience"
	"github.com/kairo-crm/intake/internal/worker"
)

// contactLister loads the CRM contacts a file is matched against.
type contactLister interface {
	ListContacts(ctx context.Context, userID string) ([]model.Contact, error)
}

// analyzeReport is the dry-run output of the analyze command.
type analyzeReport struct {
	File    string            `json:"file"`
	Mode    model.ImportMode  `json:"mode"`
	Route   model.JobStatus   `json:"route"`
	Mapping reconcile.Mapping `json:"mapping"`
	Stats   model.ImportStats `json:"stats"`
	Rows    []model.ImportRow `json:"rows,omitempty"`
}

var (
	analyzeUser     string
	analyzeMode     string
	analyzeShowRows bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Dry-run the import analysis of a CSV or XLSX file",
	Long:  "Maps the columns of a contact file, classifies every row and prints the result as JSON. Nothing is written to the database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return eris.Wrap(err, "analyze: invalid config")
		}
		ctx := cmd.Context()

		breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(cfg.LLM.BreakerThreshold, cfg.LLM.BreakerResetSecs))
		completer, err := llm.New(cfg.LLM, breakers)
		if err != nil {
			return eris.Wrap(err, "analyze: llm")
		}

		var contacts contactLister
		if analyzeUser != "" && cfg.Store.DatabaseURL != "" {
			st, err := initStore(ctx, cfg.Store)
			if err != nil {
				return eris.Wrap(err, "analyze: store")
			}
			defer st.Close() //nolint:errcheck
			contacts = st
		}

		report, err := runAnalyze(ctx, args[0], analyzeUser, model.ImportMode(analyzeMode), contacts, completer)
		if err != nil {
			return err
		}
		if !analyzeShowRows {
			report.Rows = nil
		}
		return writeReport(cmd.OutOrStdout(), report)
	},
}

// runAnalyze classifies the rows of a local file. contacts and completer may be nil.
func runAnalyze(ctx context.Context, path, userID string, mode model.ImportMode, contacts contactLister, completer llm.Completer) (*analyzeReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "analyze: read %s", path)
	}

	table, err := fetcher.Parse(filepath.Base(path), data)
	if err != nil || len(table.Rows) == 0 {
		return nil, worker.ErrEmptyFile
	}

	mapper, analyzer, err := buildReconciler(cfg.Import, completer)
	if err != nil {
		return nil, err
	}

	mapping := mapper.Map(ctx, table.Headers, table.Samples(cfg.Import.SampleRows))
	if !mapping.Has(model.FieldFirstName) || !mapping.Has(model.FieldLastName) {
		return nil, worker.ErrRequiredColumns
	}

	var existing []model.Contact
	if contacts != nil {
		existing, err = contacts.ListContacts(ctx, userID)
		if err != nil {
			return nil, eris.Wrap(err, "analyze: list contacts")
		}
	}
	zap.L().Info("analyze: matching against contacts",
		zap.String("file", path),
		zap.Int("rows", len(table.Rows)),
		zap.Int("contacts", len(existing)),
	)

	analysis := analyzer.Analyze(ctx, table.Rows, mapping, reconcile.NewMatchingIndex(existing))

	return &analyzeReport{
		File:    path,
		Mode:    mode,
		Route:   reconcile.Route(mode, analysis.Stats),
		Mapping: mapping,
		Stats:   analysis.Stats,
		Rows:    analysis.Rows,
	}, nil
}

func writeReport(w io.Writer, report *analyzeReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(report), "analyze: write report")
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "match against this user's contacts (requires store.database_url)")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", string(model.ModeSafe), "import mode used to pick the route (turbo, safe, balanced)")
	analyzeCmd.Flags().BoolVar(&analyzeShowRows, "rows", false, "include every classified row in the output")
	rootCmd.AddCommand(analyzeCmd)
}
