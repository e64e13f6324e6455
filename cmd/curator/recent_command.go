package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"curator/internal/database"

	"github.com/spf13/cobra"
)

func newRecentCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var forget string

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently opened datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withRegistry(func(db *database.Database) error {
				if forget != "" {
					abs, err := filepath.Abs(forget)
					if err != nil {
						return err
					}
					if err := db.RemoveDataset(abs); err != nil {
						return err
					}
					fmt.Fprintf(out, "Forgot %s\n", abs)
					return nil
				}

				datasets, err := db.RecentDatasets(limit)
				if err != nil {
					return err
				}
				if len(datasets) == 0 {
					fmt.Fprintln(out, "No recent datasets")
					return nil
				}

				rows := make([][]string, 0, len(datasets))
				for _, ds := range datasets {
					rows = append(rows, []string{
						ds.Name,
						strconv.Itoa(ds.NumSamples),
						strconv.Itoa(ds.Captioned),
						ds.LastOpened.Local().Format("2006-01-02 15:04"),
						ds.Path,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Name", "Samples", "Captioned", "Opened", "Folder"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of datasets to show (-1 for all)")
	cmd.Flags().StringVar(&forget, "forget", "", "Remove a dataset folder from the list")
	return cmd
}
