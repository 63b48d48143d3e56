package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nonprofit-verify/internal/verify"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <ein-or-name>",
	Short: "Look up one organization by EIN or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		state, _ := cmd.Flags().GetString("state")
		fresh, _ := cmd.Flags().GetBool("fresh")

		env, err := initVerify(ctx, envOptions{restoreSnapshot: true, loadFilingIndex: true})
		if err != nil {
			return err
		}
		defer env.Close()

		lookup := env.Service.Lookup
		if fresh {
			lookup = env.Service.Reverify
		}
		res, err := lookup(ctx, args[0], state)
		if err != nil {
			return eris.Wrap(err, "lookup")
		}
		if res.Outcome == verify.OutcomeNotFound {
			fmt.Fprintf(os.Stderr, "No organization found for %q.\n", args[0])
			return nil
		}
		return writeJSON(cmd.OutOrStdout(), res.Record)
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	lookupCmd.Flags().String("state", "", "two-letter state filter for name lookups")
	lookupCmd.Flags().Bool("fresh", false, "drop any cached answer and query the sources again")
	rootCmd.AddCommand(lookupCmd)
}
