package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"curator/pkg/models"

	"github.com/spf13/cobra"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <audio>",
		Short: "Show the embedded tags and duration of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			extractor := ctx.newExtractor()
			if !extractor.IsAudioFile(path) {
				return fmt.Errorf("%s is not a supported audio file", path)
			}

			hints, err := extractor.ReadTags(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(hints)
			}

			rows := [][]string{
				{"ID", models.GenerateID(path)},
				{"Title", hints.Title},
				{"Artist", hints.Artist},
				{"Album", hints.Album},
				{"Genre", hints.Genre},
				{"Year", formatInt(hints.Year)},
				{"Length", formatDuration(hints.Duration)},
				{"Size", strconv.FormatInt(hints.FileSize, 10)},
				{"Format", hints.Format},
				{"File type", hints.FileType},
				{"Picture", strconv.FormatBool(hints.HasPicture)},
				{"Lyrics", truncate(hints.Lyrics, 60)},
				{"Comment", truncate(hints.Comment, 60)},
			}
			fmt.Fprintln(out, renderTable([]string{"Tag", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tags as JSON")
	return cmd
}
