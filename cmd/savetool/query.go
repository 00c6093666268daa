package main

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

func newQueryCmd(df *decodeFlags) *cobra.Command {
	var first bool
	cmd := &cobra.Command{
		Use:   "query [file.sav] [jsonpath]",
		Short: "Run a JSONPath expression over the simplified property tree",
		Example: `  savetool query Level.sav '$.worldSaveData.GroupSaveDataMap[*].key'
  savetool query Players/0001.sav '$..PlayerUId'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := jp.ParseString(args[1])
			if err != nil {
				return fmt.Errorf("parse jsonpath: %w", err)
			}
			f, err := df.decodeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			results := x.Get(rawnode.Simplify(f.Properties))
			var out any = results
			if first {
				if len(results) == 0 {
					return fmt.Errorf("no match for %s", args[1])
				}
				out = results[0]
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), oj.JSON(out, &oj.Options{Indent: 2, Sort: true}))
			return err
		},
	}
	cmd.Flags().BoolVar(&first, "first", false, "print only the first match")
	return cmd
}
