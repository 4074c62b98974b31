package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func runCMD(cfgPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run one research query and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			res, err := a.Pipeline.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Println(res.Report)
			for stage, msg := range res.BranchErrors {
				fmt.Fprintf(os.Stderr, "warning: %s branch failed: %s\n", stage, msg)
			}
			for _, is := range res.ReportIssues {
				fmt.Fprintf(os.Stderr, "warning: report %s\n", is)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run result as JSON")
	return cmd
}
