// Package tensor provides the core tensor type for the flint compute engine:
// a dense N-dimensional float32 buffer with a lazily allocated gradient
// buffer and the operation/input linkage that forms the implicit computation
// graph walked by the autograd package.
//
// Tensors are created by factory functions (Zeros, Ones, Full, FromSlice,
// Randn, Rand) or as the outputs of engine operations. Views created by
// Slice borrow the parent's memory and must not outlive it.
//
// The package performs no computation itself; kernels live in the backend
// packages and are resolved by name through the engine's registry.
package tensor
