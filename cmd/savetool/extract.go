package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/palworld-lens/internal/app"
	"github.com/cory-johannsen/palworld-lens/internal/config"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
)

type extractedRecord struct {
	Key   string       `json:"key,omitempty"`
	Attrs schema.Attrs `json:"attrs"`
}

func newExtractCmd(df *decodeFlags) *cobra.Command {
	var (
		schemaDir   string
		scriptsDir  string
		gamedataDir string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "extract [kind] [file.sav]",
		Short: "Apply an entity schema to a save and print the extracted records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, path := args[0], args[1]
			p, err := app.Build(cmd.Context(), zap.NewNop(), config.Config{
				Schema:   config.SchemaConfig{Dir: schemaDir, ScriptsDir: scriptsDir},
				Gamedata: config.GamedataConfig{Source: config.GamedataFiles, Dir: gamedataDir},
			})
			if err != nil {
				return err
			}
			defer p.Close()

			es, ok := p.Schemas.Schema(kind)
			if !ok {
				return fmt.Errorf("unknown kind %q (have %v)", kind, p.Schemas.Kinds())
			}
			f, err := df.decodeFile(cmd.Context(), path)
			if err != nil {
				return err
			}

			out := []extractedRecord{}
			if es.Collection == nil {
				out = append(out, extractedRecord{Attrs: es.Extract(f.Properties, nil)})
			} else {
				for _, r := range es.Collect(f.Properties) {
					if limit > 0 && len(out) == limit {
						break
					}
					out = append(out, extractedRecord{Key: r.Key, Attrs: r.Attrs})
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&schemaDir, "schema-dir", "schemas", "entity schema directory")
	cmd.Flags().StringVar(&scriptsDir, "scripts-dir", "scripts/transforms", "Lua transform directory")
	cmd.Flags().StringVar(&gamedataDir, "gamedata-dir", "gamedata", "lookup table directory")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most n records (0 = all)")
	return cmd
}
