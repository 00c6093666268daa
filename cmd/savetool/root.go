package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/palworld-lens/internal/app"
	"github.com/cory-johannsen/palworld-lens/internal/config"
	"github.com/cory-johannsen/palworld-lens/internal/gvas"
)

// decodeFlags are shared by every subcommand that decodes a save.
type decodeFlags struct {
	hintsFile    string
	hintFallback bool
	skipCodecs   bool
}

func newRootCmd() *cobra.Command {
	var df decodeFlags
	root := &cobra.Command{
		Use:           "savetool",
		Short:         "Inspect Palworld save files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&df.hintsFile, "hints-file", "", "YAML file of extra struct type hints")
	root.PersistentFlags().BoolVar(&df.hintFallback, "hint-fallback", false, "decode unhinted struct maps generically")
	root.PersistentFlags().BoolVar(&df.skipCodecs, "skip-codecs", false, "leave RawData byte arrays undecoded")

	root.AddCommand(
		newInfoCmd(&df),
		newDumpCmd(&df),
		newQueryCmd(&df),
		newExtractCmd(&df),
	)
	return root
}

func (df *decodeFlags) options() (gvas.Options, error) {
	opts, err := app.DecodeOptions(config.SaveConfig{HintsFile: df.hintsFile, HintFallback: df.hintFallback})
	if err != nil {
		return gvas.Options{}, err
	}
	opts.SkipCodecs = df.skipCodecs
	return opts, nil
}

// decodeFile reads and fully decodes the save at path.
func (df *decodeFlags) decodeFile(ctx context.Context, path string) (*gvas.File, error) {
	opts, err := df.options()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read save: %w", err)
	}
	f, err := gvas.DecodeSave(ctx, data, opts)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return f, nil
}
