package backend

// Names of the built-in tensor operations. Backends register implementations
// under these names; the engine resolves them through the registry.
const (
	OpAdd     = "add"
	OpSub     = "sub"
	OpMul     = "mul"
	OpMatMul  = "matmul"
	OpReLU    = "relu"
	OpSigmoid = "sigmoid"
	OpTanh    = "tanh"
	OpSoftmax = "softmax"

	OpTranspose2D = "transpose2d"

	LossMSE                = "mse"
	LossCrossEntropy       = "cross_entropy"
	LossBinaryCrossEntropy = "binary_cross_entropy"
)

// AcceleratedOps lists the operation names an accelerated backend is
// expected to provide. Losses stay on the CPU reference path.
var AcceleratedOps = []string{
	OpAdd, OpSub, OpMul, OpMatMul, OpReLU, OpSigmoid, OpTanh, OpSoftmax,
}
