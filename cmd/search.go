package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nonprofit-verify/internal/namematch"
)

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Rank registry organizations by name similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		state, _ := cmd.Flags().GetString("state")
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("page-size")

		env, err := initVerify(ctx, envOptions{restoreSnapshot: true})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Search(ctx, namematch.Query{
			Text:     strings.Join(args, " "),
			State:    state,
			Page:     page,
			PageSize: size,
		})
		if err != nil {
			return eris.Wrap(err, "search")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EIN\tNAME\tCITY\tSTATE\tREVENUE\tSCORE")
		for _, m := range res.Matches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\n", m.EIN, m.Name, m.City, m.State, m.Revenue, m.Score)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "page %d, %d of %d matches\n", res.Page, len(res.Matches), res.Total)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("state", "", "two-letter state filter")
	searchCmd.Flags().Int("page", 1, "1-based page number")
	searchCmd.Flags().Int("page-size", 0, "matches per page (default from config)")
	rootCmd.AddCommand(searchCmd)
}
