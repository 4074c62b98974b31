package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func historyCMD(cfgPath *string) *cobra.Command {
	var search string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs or search their reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()
			if search != "" {
				hits, err := a.Index.Search(ctx, search, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "RUN\tSCORE\tQUERY")
				for _, h := range hits {
					fmt.Fprintf(w, "%s\t%.3f\t%s\n", h.RunID, h.Score, h.UserRequest)
				}
				return nil
			}
			entries, err := a.History().Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "RUN\tWHEN\tQUERY")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.RunID, e.Timestamp.Local().Format(time.DateTime), e.UserRequest)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "full-text query over past reports")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}
