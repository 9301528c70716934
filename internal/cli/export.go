package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cohort-run/cohort/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export raw goal records",
	Long: `Export an experiment's goal records in CSV or JSON format.

Examples:
  cohort export signup-flow --format csv > signup-goals.csv
  cohort export signup-flow --format json > signup-goals.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	name := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", name)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		records, err := s.GoalRecords(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to get goal records: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(records)
		}
		return exportJSON(records)
	})
}

func exportCSV(records []*store.GoalRecord) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "goal_type", "visitor"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.CreatedAt.Unix(), 10),
			rec.GoalType,
			rec.Visitor.Ref(),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Records []jsonRecord `json:"goal_records"`
}

type jsonRecord struct {
	Timestamp int64  `json:"timestamp"`
	GoalType  string `json:"goal_type"`
	Visitor   string `json:"visitor"`
}

func exportJSON(records []*store.GoalRecord) error {
	export := jsonExport{
		Records: make([]jsonRecord, len(records)),
	}

	for i, rec := range records {
		export.Records[i] = jsonRecord{
			Timestamp: rec.CreatedAt.Unix(),
			GoalType:  rec.GoalType,
			Visitor:   rec.Visitor.Ref(),
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
