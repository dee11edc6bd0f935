package cpuexec

import (
	"fmt"

	"github.com/flint-go/flint/internal/graph"
)

func unknownOpError(op graph.OpKind) error {
	return fmt.Errorf("cpuexec: no registry entry for op kind %v", op)
}
