package graph

// OpKind identifies the operation a Node performs. The set is closed: adding
// a new kind means adding a case to the registry table (internal/registry),
// never growing a type switch scattered across the codebase.
type OpKind int

const (
	// Storage / literals
	OpStore OpKind = iota
	OpConstant
	OpArange
	OpRandom

	// Element-wise arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpNeg
	OpAbs
	OpSign
	OpEven
	OpLog
	OpLog2
	OpLog10
	OpExp
	OpSqrt
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan

	// Comparisons
	OpLess
	OpEqual
	OpGreater

	// Shape operations
	OpReshape
	OpFlatten
	OpTranspose
	OpRepeat
	OpSlice
	OpExtend
	OpConcat
	OpExpand

	// Reductions (one axis)
	OpReduceSum
	OpReduceMul
	OpReduceMin
	OpReduceMax

	OpMatmul

	// Convolution
	OpConvolve
	OpGradientConvolve
	OpGradientConvolveKernel

	// Indexed access
	OpIndexRead
	OpIndexWrite

	// Sliding window
	OpSlidingWindow
	OpUnslide

	// Pooling
	OpPoolingSum
	OpPoolingMax
	OpGradientPoolingMax

	OpDropout
	OpConvert
)

var opNames = map[OpKind]string{
	OpStore: "store", OpConstant: "constant", OpArange: "arange", OpRandom: "random",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpPow: "pow",
	OpNeg: "neg", OpAbs: "abs", OpSign: "sign", OpEven: "even",
	OpLog: "log", OpLog2: "log2", OpLog10: "log10", OpExp: "exp", OpSqrt: "sqrt",
	OpSin: "sin", OpCos: "cos", OpTan: "tan", OpAsin: "asin", OpAcos: "acos", OpAtan: "atan",
	OpLess: "less", OpEqual: "equal", OpGreater: "greater",
	OpReshape: "reshape", OpFlatten: "flatten", OpTranspose: "transpose",
	OpRepeat: "repeat", OpSlice: "slice", OpExtend: "extend", OpConcat: "concat", OpExpand: "expand",
	OpReduceSum: "reduce_sum", OpReduceMul: "reduce_mul", OpReduceMin: "reduce_min", OpReduceMax: "reduce_max",
	OpMatmul:                 "matmul",
	OpConvolve:               "convolve",
	OpGradientConvolve:       "gradient_convolve",
	OpGradientConvolveKernel: "gradient_convolve_kernel",
	OpIndexRead:              "index_read",
	OpIndexWrite:             "index_write",
	OpSlidingWindow:          "sliding_window",
	OpUnslide:                "unslide",
	OpPoolingSum:             "pooling_sum",
	OpPoolingMax:             "pooling_max",
	OpGradientPoolingMax:     "gradient_pooling_max",
	OpDropout:                "dropout",
	OpConvert:                "convert",
}

// String returns the operation's lowercase snake_case name, matching the
// names emitted by the registry's OCL codegen fragments.
func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return "unknown"
}

// unaryTranscendental is the set of ops whose int operands promote to
// float64 before evaluation, per spec §3.
var unaryTranscendental = map[OpKind]bool{
	OpLog: true, OpLog2: true, OpLog10: true, OpExp: true, OpSqrt: true,
	OpSin: true, OpCos: true, OpTan: true, OpAsin: true, OpAcos: true, OpAtan: true,
}

// IsTranscendental reports whether k is a transcendental unary op.
func IsTranscendental(k OpKind) bool { return unaryTranscendental[k] }

// AuxData holds operation-specific parameters. Exactly one of the typed
// fields is populated, selected by the owning Node's Op kind; this mirrors
// the C union in the original implementation without requiring an unsafe
// cast, at the cost of a slightly larger struct per node.
type AuxData struct {
	// Reshape/flatten/expand target shape.
	TargetShape Shape

	// Transpose/repeat: per-axis permutation or repeat counts.
	Axes []int

	// Slice: per-axis [start, end, step).
	SliceStart []int
	SliceEnd   []int
	SliceStep  []int

	// Extend: per-axis insertion offset and stride; dual of slice.
	ExtendShape  Shape
	ExtendOffset []int
	ExtendStride []int

	// Reduction / single-axis ops (reduce, concat axis).
	Axis int

	// Convolution / pooling / sliding window.
	KernelShape Shape
	Stride      []int
	MultiKernel bool // kernel rank == len(Stride) + 1 (one output channel per kernel)

	// Random: literal bounds are unused; arange uses Start/Step below.
	ArangeStart float64
	ArangeStep  float64

	// Dropout probability in [0, 1).
	DropoutP float64

	// Convert: target element type.
	ConvertTo ElementType

	// IndexRead/IndexWrite: the index tensor is carried as a predecessor,
	// not here; this field records which axis it selects along, when
	// applicable.
	IndexAxis int
}
