package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

func saveTypeName(t gvas.SaveType) string {
	switch t {
	case gvas.SaveTypeZlib:
		return "zlib"
	case gvas.SaveTypeDoubleZlib:
		return "double zlib"
	case gvas.SaveTypeUncompressed:
		return "uncompressed"
	}
	return fmt.Sprintf("unknown (0x%02x)", byte(t))
}

func newInfoCmd(df *decodeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info [file.sav]",
		Short: "Print container, header and top-level property information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read save: %w", err)
			}
			raw, saveType, err := gvas.Decompress(data)
			if err != nil {
				return fmt.Errorf("decompress %s: %w", args[0], err)
			}
			opts, err := df.options()
			if err != nil {
				return err
			}
			f, err := gvas.Decode(cmd.Context(), raw, opts)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			h := f.Header
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "file\t%s\n", args[0])
			fmt.Fprintf(tw, "compression\t%s\n", saveTypeName(saveType))
			fmt.Fprintf(tw, "size\t%d bytes (%d decompressed)\n", len(data), len(raw))
			fmt.Fprintf(tw, "save class\t%s\n", h.SaveGameClassName)
			fmt.Fprintf(tw, "save version\t%d\n", h.SaveGameVersion)
			fmt.Fprintf(tw, "package version\tUE4 %d / UE5 %d\n", h.PackageFileVersionUE4, h.PackageFileVersionUE5)
			fmt.Fprintf(tw, "engine\t%d.%d.%d-%d+%s\n",
				h.EngineVersionMajor, h.EngineVersionMinor, h.EngineVersionPatch,
				h.EngineVersionChangelist, h.EngineVersionBranch)
			fmt.Fprintf(tw, "custom versions\t%d\n", len(h.CustomVersions))
			fmt.Fprintf(tw, "trailer\t%d bytes\n", len(f.Trailer))
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\nproperties:")
			return printProperties(cmd, f.Properties, "  ")
		},
	}
}

// printProperties lists the keys of a property map, descending one level into
// the wrapper struct every Palworld save has at its root.
func printProperties(cmd *cobra.Command, props *rawnode.Node, indent string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, key := range props.Keys() {
		child, _ := props.Lookup(key)
		n := rawnode.Unwrap(child)
		summary := ""
		if n != nil {
			summary = n.Kind.String()
			switch n.Kind {
			case rawnode.KindArray:
				summary = fmt.Sprintf("%s[%d]", summary, len(n.Items))
			case rawnode.KindMap:
				summary = fmt.Sprintf("%s{%d}", summary, len(n.Fields))
			}
		}
		fmt.Fprintf(tw, "%s%s\t%s\n", indent, key, summary)
		if n != nil && n.Kind == rawnode.KindMap && indent == "  " {
			if err := tw.Flush(); err != nil {
				return err
			}
			if err := printProperties(cmd, n, indent+"  "); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}
