package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flint-go/flint/pkg/tensorcodec"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <tensor-file>",
	Short: "Print the shape, element type, and element count of a serialized tensor",
	Args:  cobra.ExactArgs(1),
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

		fmt.Printf("shape:   %v\n", t.Shape)
		fmt.Printf("type:    %v\n", t.Type)
		fmt.Printf("count:   %d\n", t.Shape.Count())
		fmt.Printf("bytes:   %d\n", len(t.Data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
