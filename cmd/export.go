package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/inquiry-cli/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a completed run's comparison matrix to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}

		file, err := buildWorkbook(run)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("run-%s.xlsx", truncateID(run.ID))
		}
		if err := file.Save(out); err != nil {
			return eris.Wrap(err, "export: save workbook")
		}

		fmt.Printf("Exported %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default run-<id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}

// buildWorkbook renders a run's comparison matrix, citations, and quality
// summary into a workbook.
func buildWorkbook(run *model.Run) (*xlsx.File, error) {
	if run.Result == nil || run.Result.Report == nil {
		return nil, eris.Errorf("export: run %s has no report", run.ID)
	}
	report := run.Result.Report

	file := xlsx.NewFile()

	if t := report.Comparison; t.Populated() {
		sheet, err := file.AddSheet("Comparison")
		if err != nil {
			return nil, eris.Wrap(err, "export: add comparison sheet")
		}
		header := sheet.AddRow()
		for _, h := range t.Headers {
			header.AddCell().Value = h
		}
		for _, row := range t.Rows {
			r := sheet.AddRow()
			for _, cell := range row {
				r.AddCell().Value = cell
			}
		}
	}

	if len(report.Citations) > 0 {
		sheet, err := file.AddSheet("Sources")
		if err != nil {
			return nil, eris.Wrap(err, "export: add sources sheet")
		}
		header := sheet.AddRow()
		for _, h := range []string{"Index", "URL", "Credibility"} {
			header.AddCell().Value = h
		}
		for _, c := range report.Citations {
			row := sheet.AddRow()
			row.AddCell().SetInt(c.Index)
			row.AddCell().Value = c.SourceURL
			row.AddCell().SetFloat(c.Credibility)
		}
	}

	if q := run.Result.Quality; q != nil {
		sheet, err := file.AddSheet("Quality")
		if err != nil {
			return nil, eris.Wrap(err, "export: add quality sheet")
		}
		addKV := func(key string, value string) {
			row := sheet.AddRow()
			row.AddCell().Value = key
			row.AddCell().Value = value
		}
		addKV("Overall", fmt.Sprintf("%.1f", q.Overall))
		addKV("Grade", string(q.Grade))
		addKV("Source quality", fmt.Sprintf("%.1f", q.Components.SourceQuality))
		addKV("Citation correctness", fmt.Sprintf("%.1f", q.Components.CitationCorrectness))
		addKV("Completeness", fmt.Sprintf("%.1f", q.Components.Completeness))
		if q.Components.ComparisonScored {
			addKV("Comparison quality", fmt.Sprintf("%.1f", q.Components.ComparisonQuality))
		}
		for _, issue := range q.Issues {
			addKV("Issue", issue)
		}
	}

	if len(file.Sheets) == 0 {
		return nil, eris.Errorf("export: run %s has nothing to export", run.ID)
	}
	return file, nil
}
