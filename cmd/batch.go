package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/verify"
)

var batchCmd = &cobra.Command{
	Use:   "batch [ein...]",
	Short: "Look up many EINs, from arguments or a file",
	Long:  "Looks up every EIN given as an argument or listed one per line in --file (\"-\" reads stdin). Results are written as JSON in input order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		inputs := append([]string(nil), args...)
		if file != "" {
			fromFile, err := readInputs(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			inputs = append(inputs, fromFile...)
		}
		if len(inputs) == 0 {
			return eris.New("batch: no EINs given")
		}

		env, err := initVerify(ctx, envOptions{restoreSnapshot: true, loadFilingIndex: true})
		if err != nil {
			return err
		}
		defer env.Close()

		var all []verify.BatchItem
		for chunk := range chunks(inputs, cfg.Batch.MaxSize) {
			items, err := env.Service.BatchLookup(ctx, chunk)
			if err != nil {
				return eris.Wrap(err, "batch")
			}
			all = append(all, items...)
		}

		zap.L().Info("batch complete", zap.Int("inputs", len(inputs)))
		return writeJSON(cmd.OutOrStdout(), all)
	},
}

// readInputs reads one EIN per line, ignoring blanks and # comments.
func readInputs(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Accept CSV exports: the EIN is the first column.
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		out = append(out, line)
	}
	return out, eris.Wrap(sc.Err(), "batch: read inputs")
}

// chunks yields consecutive slices of at most n items.
func chunks(in []string, n int) func(func([]string) bool) {
	return func(yield func([]string) bool) {
		for len(in) > 0 {
			end := min(n, len(in))
			if !yield(in[:end]) {
				return
			}
			in = in[end:]
		}
	}
}

func init() {
	batchCmd.Flags().String("file", "", "file with one EIN per line (\"-\" for stdin)")
	rootCmd.AddCommand(batchCmd)
}
