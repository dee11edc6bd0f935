package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flint-go/flint/pkg/tensorcodec"
)

var serializeCmd = &cobra.Command{
	Use:   "serialize <tensor-file> <store-key>",
	Short: "Upload a locally-encoded tensor file into the configured tensor store",
	Long: `Reads a tensor already encoded in this project's wire format from disk
and saves it under <store-key> via the engine's configured tensorstore
(local disk or object storage, per the loaded config's storage.type).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		t, err := tensorcodec.Decode(f)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", args[0], err)
		}

		store := Engine().Store()
		if store == nil {
			return fmt.Errorf("no tensor store configured (set storage.type in --config)")
		}
		if err := store.Save(context.Background(), args[1], t); err != nil {
			return fmt.Errorf("saving %s: %w", args[1], err)
		}

		fmt.Printf("saved %s (%d bytes) as %s\n", args[0], len(t.Data), args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serializeCmd)
}
