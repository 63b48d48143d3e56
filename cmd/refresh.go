package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild datasets and inspect refresh history",
}

// -- refresh registry --

var refreshRegistryCmd = &cobra.Command{
	Use:   "registry [location...]",
	Short: "Rebuild the registry snapshot from the bulk files",
	Long:  "Downloads and parses the EO BMF extracts (paths, http(s):// or ftp:// URLs, .csv or .zip) and replaces the persisted snapshot. Locations default to registry.locations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initVerify(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.RefreshRegistrySnapshot(ctx, args)
		if err != nil {
			return eris.Wrap(err, "refresh registry")
		}
		zap.L().Info("registry refreshed",
			zap.String("run_id", res.RunID),
			zap.Int("orgs", res.Orgs),
			zap.Duration("elapsed", res.Duration),
		)
		return nil
	},
}

// -- refresh filings --

var refreshFilingsCmd = &cobra.Command{
	Use:   "filings",
	Short: "Check the Form 990 filing index loads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initVerify(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Service.RefreshFilingIndex(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d EINs indexed across years %v\n", n, env.Archive.Index().Years())
		return nil
	},
}

// -- refresh list --

var refreshListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent registry refresh runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initVerify(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.Service.Refreshes(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No refresh runs found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tROWS\tSOURCE\tERROR")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Rows, r.Source, r.Error)
		}
		return w.Flush()
	},
}

func init() {
	refreshListCmd.Flags().Int("limit", 20, "maximum runs to show")
	refreshCmd.AddCommand(refreshRegistryCmd, refreshFilingsCmd, refreshListCmd)
	rootCmd.AddCommand(refreshCmd)
}
