package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"docsorter/internal/daemonrun"
	"docsorter/internal/extract"
	"docsorter/internal/inbox"
	"docsorter/internal/organizer"
	"docsorter/internal/services/llm"
)

type extractView struct {
	File        string               `json:"file"`
	Stage       string               `json:"stage"`
	Chars       int                  `json:"chars"`
	Degraded    bool                 `json:"degraded"`
	Diagnostics []extract.Diagnostic `json:"diagnostics,omitempty"`
	Text        string               `json:"text"`
}

type classifyView struct {
	File        string `json:"file"`
	Category    string `json:"category"`
	Filename    string `json:"filename"`
	Destination string `json:"destination"`
	Stage       string `json:"extraction_stage"`
	Chars       int    `json:"chars"`
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text docsorter would send to the classifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cand, err := loadCandidate(args[0])
			if err != nil {
				return err
			}
			content, err := daemonrun.NewExtractor(cfg, ctx.toolLogger()).Extract(cmd.Context(), cand)
			if err != nil {
				return err
			}
			view := extractView{
				File:        cand.Path,
				Stage:       string(content.Stage),
				Chars:       content.Chars,
				Degraded:    content.Degraded(),
				Diagnostics: content.Diagnostics,
				Text:        content.Text,
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:      %s\n", view.File)
			fmt.Fprintf(out, "Stage:     %s\n", view.Stage)
			fmt.Fprintf(out, "Chars:     %d\n", view.Chars)
			fmt.Fprintf(out, "Degraded:  %s\n", yesNo(view.Degraded))
			if len(view.Diagnostics) > 0 {
				rows := make([][]string, 0, len(view.Diagnostics))
				for _, d := range view.Diagnostics {
					page := ""
					if d.Page > 0 {
						page = strconv.Itoa(d.Page)
					}
					rows = append(rows, []string{string(d.Stage), string(d.Code), page, d.Detail})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Stage", "Code", "Page", "Detail"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, view.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Show the category and filename a document would get, without moving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cand, err := loadCandidate(args[0])
			if err != nil {
				return err
			}
			logger := ctx.toolLogger()
			content, err := daemonrun.NewExtractor(cfg, logger).Extract(cmd.Context(), cand)
			if err != nil {
				return err
			}
			meta, err := daemonrun.NewClassifier(cfg, logger).Classify(cmd.Context(), llm.Request{
				Text:         content.Text,
				OriginalName: cand.Name(),
			})
			if err != nil {
				return fmt.Errorf("classify %s: %w", cand.Name(), err)
			}

			category := organizer.Sanitize(meta.Category)
			view := classifyView{
				File:        cand.Path,
				Category:    meta.Category,
				Filename:    meta.Filename,
				Destination: filepath.Join(cfg.Paths.OutputRoot, category, organizer.SanitizeFilename(meta.Filename, cand.Ext)+cand.Ext),
				Stage:       string(content.Stage),
				Chars:       content.Chars,
			}
			if asJSON {
				return writeJSON(cmd, view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(cmd.OutOrStdout(),
				[]string{"Field", "Value"},
				[][]string{
					{"File", view.File},
					{"Extraction", fmt.Sprintf("%s (%d chars)", view.Stage, view.Chars)},
					{"Category", view.Category},
					{"Filename", view.Filename},
					{"Destination", view.Destination},
				},
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func loadCandidate(path string) (inbox.FileCandidate, error) {
	cand, err := inbox.NewCandidate(path, inbox.SourceCatchUp)
	if err == nil {
		return cand, nil
	}
	if reason, ok := inbox.AsSkip(err); ok {
		return inbox.FileCandidate{}, fmt.Errorf("%s is not a sortable document (%s)", path, reason)
	}
	return inbox.FileCandidate{}, err
}
