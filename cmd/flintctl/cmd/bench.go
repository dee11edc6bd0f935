package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flint-go/flint/internal/engine"
	"github.com/flint-go/flint/internal/graph"
	"github.com/flint-go/flint/internal/registry"
)

var (
	benchSize    int
	benchBackend string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Materialize a fixed element-wise add and report wall-clock time per backend",
	Long: `Builds two flat vectors of --size elements, adds them, and materializes
the result once per requested backend (cpu, gpu, or both), printing the
wall-clock time measured around each internal/engine.Materialize call. Bypasses
the shared engine the root command builds, since it needs one engine per
backend mask under test.`,
	// Bench builds its own engine(s) per backend below instead of relying
	// on the root command's single shared instance.
	PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:               runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVar(&benchSize, "size", 1<<16, "Element count of each benchmarked vector")
	benchCmd.Flags().StringVar(&benchBackend, "backend", "both", "Which backend(s) to bench: cpu, gpu, both")
}

func runBench(cmd *cobra.Command, args []string) error {
	masks := map[string]string{"cpu": "cpu", "gpu": "gpu"}
	var order []string
	switch benchBackend {
	case "cpu", "gpu":
		order = []string{benchBackend}
	case "both", "":
		order = []string{"cpu", "gpu"}
	default:
		return fmt.Errorf("unknown --backend %q (valid: cpu, gpu, both)", benchBackend)
	}

	for _, name := range order {
		cfg, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg.Engine.Backend = masks[name]

		e, err := engine.New(cfg)
		if err != nil {
			return fmt.Errorf("starting %s engine: %w", name, err)
		}

		sum, err := buildBenchGraph(benchSize)
		if err != nil {
			e.Close()
			return err
		}

		start := time.Now()
		_, err = e.Materialize(context.Background(), sum)
		elapsed := time.Since(start)
		e.Close()
		if err != nil {
			return fmt.Errorf("%s materialize: %w", name, err)
		}

		fmt.Printf("%-4s  n=%-8d  %s\n", name, benchSize, elapsed)
	}
	return nil
}

func buildBenchGraph(n int) (*graph.Node, error) {
	a := registry.NewBuffer(graph.Float64, n)
	b := registry.NewBuffer(graph.Float64, n)
	for i := 0; i < n; i++ {
		registry.WriteElement(a, graph.Float64, i, float64(i))
		registry.WriteElement(b, graph.Float64, i, float64(n-i))
	}
	an, err := graph.Store(a, graph.Float64, graph.Shape{n})
	if err != nil {
		return nil, err
	}
	bn, err := graph.Store(b, graph.Float64, graph.Shape{n})
	if err != nil {
		return nil, err
	}
	return graph.Add(an, bn)
}
