package main

import (
	"encoding/json"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

func newDumpCmd(df *decodeFlags) *cobra.Command {
	var (
		format string
		path   string
		depth  int
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "dump [file.sav]",
		Short: "Print the decoded property tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := df.decodeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			node := f.Properties
			if path != "" {
				var ok bool
				if node, ok = rawnode.Get(f.Properties, path); !ok {
					return fmt.Errorf("path %q not found", path)
				}
			}
			var v any = rawnode.Simplify(node)
			if raw {
				v = node
			}

			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			case "spew":
				cfg := spew.ConfigState{
					Indent:                  "  ",
					MaxDepth:                depth,
					DisablePointerAddresses: true,
					DisableCapacities:       true,
					SortKeys:                true,
				}
				cfg.Fdump(cmd.OutOrStdout(), v)
				return nil
			}
			return fmt.Errorf("unknown format %q (json, spew)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or spew")
	cmd.Flags().StringVarP(&path, "path", "p", "", "dotted path of the subtree to print")
	cmd.Flags().IntVar(&depth, "depth", 0, "spew nesting limit (0 = unlimited)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print nodes instead of simplified values")
	return cmd
}
