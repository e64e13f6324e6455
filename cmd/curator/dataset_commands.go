package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"curator/internal/dataset"
	"curator/pkg/models"

	"github.com/spf13/cobra"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var withDurations bool

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Open a dataset folder and write its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, extractor, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			if withDurations {
				filled, err := session.FillDurations(cmd.Context(), extractor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Filled %d durations\n", filled)
			}
			if err := session.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s\n", session.Len(), session.ManifestPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDurations, "durations", false, "Probe audio durations before writing")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [dir|manifest]",
		Short: "List the samples of a dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch status {
			case "all", "captioned", "uncaptioned":
			default:
				return fmt.Errorf("invalid status %q (must be all, captioned or uncaptioned)", status)
			}

			session, _, err := ctx.openSession(args)
			if err != nil {
				return err
			}

			var records []models.Record
			for _, rec := range session.Records() {
				if status == "captioned" && !rec.Labeled() || status == "uncaptioned" && rec.Labeled() {
					continue
				}
				records = append(records, rec)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No samples")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for i, rec := range records {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					rec.ID,
					truncate(rec.Filename, 32),
					truncate(rec.Caption, 48),
					truncate(rec.Genre, 20),
					formatInt(rec.BPM),
					rec.Keyscale,
					formatDuration(rec.Duration),
					rec.Language,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "ID", "File", "Caption", "Genre", "BPM", "Key", "Length", "Lang"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "Filter by caption status: all, captioned, uncaptioned")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [dir|manifest]",
		Short: "Show captioning progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(session.Metadata(), session.Stats()))
			return nil
		},
	}
}

func renderStats(meta models.DatasetMetadata, st dataset.Stats) string {
	rows := [][]string{
		{"Dataset", meta.Name},
		{"Samples", strconv.Itoa(st.Total)},
		{"Captioned", fmt.Sprintf("%d (%d%%)", st.Captioned, st.CaptionedPercent)},
		{"To caption", strconv.Itoa(st.ToCaption)},
		{"Lyrics done", fmt.Sprintf("%d (%d%%)", st.LyricsDone, st.LyricsPercent)},
		{"Lyrics left", strconv.Itoa(st.LyricsLeft)},
		{"Custom tag", meta.CustomTag},
		{"Tag position", string(meta.TagPosition)},
		{"Genre ratio", fmt.Sprintf("%d%%", meta.GenreRatio)},
		{"All instrumental", strconv.FormatBool(meta.AllInstrumental)},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "save [dir|manifest]",
		Short: "Normalize and rewrite a dataset manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			if output != "" {
				err = session.SaveAs(output)
			} else {
				err = session.Save()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d samples to %s\n", session.Len(), session.ManifestPath())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this manifest path instead")
	return cmd
}

func newBackupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [dir|manifest]",
		Short: "Copy the manifest into the backup folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			path, err := session.Backup()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		},
	}
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <field> <value> [dir|manifest]",
		Short: "Set one field on every sample and save",
		Long: "Set one field on every sample and save. Fields: " +
			"caption, genre, lyrics, bpm, keyscale, timesignature, duration, language, is_instrumental, prompt_override.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := models.ParseField(args[0])
			if err != nil {
				return err
			}
			value := args[1]
			if field == models.FieldLanguage && !models.IsKnownLanguage(value) {
				return fmt.Errorf("%w: %s (known: %s)", models.ErrUnknownLanguage, value, strings.Join(models.Languages, ", "))
			}

			session, _, err := ctx.openSession(args[2:])
			if err != nil {
				return err
			}
			if field == models.FieldLanguage {
				err = session.ApplyLanguage(value)
			} else {
				err = session.ApplyField(field, value)
			}
			if err != nil {
				return err
			}
			if err := session.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s on %d samples\n", field, session.Len())
			return nil
		},
	}
}

func newInstrumentalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "instrumental <on|off> [dir|manifest]",
		Short:     "Mark the whole dataset as instrumental or not and save",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var instrumental bool
			switch strings.ToLower(args[0]) {
			case "on", "true", "yes":
				instrumental = true
			case "off", "false", "no":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			session, _, err := ctx.openSession(args[1:])
			if err != nil {
				return err
			}
			session.SetAllInstrumental(instrumental)
			if err := session.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All instrumental: %t (%d samples)\n", instrumental, session.Len())
			return nil
		},
	}
}

func newMergeParagraphsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-paragraphs [dir|manifest]",
		Short: "Join multi-line captions into one line and save",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			changed := session.MergeParagraphs()
			if changed > 0 {
				if err := session.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d captions\n", changed)
			return nil
		},
	}
}

func newDurationsCommand(ctx *commandContext) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "durations [dir|manifest]",
		Short: "Probe audio durations for samples that have none",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, extractor, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			filled, err := session.FillDurations(cmd.Context(), extractor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Filled %d durations\n", filled)
			if !save {
				if filled > 0 {
					fmt.Fprintln(out, "Run with --save to write them to the manifest")
				}
				return nil
			}
			if err := session.Save(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved to %s\n", session.ManifestPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Write the probed durations to the manifest")
	return cmd
}

func formatInt(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
