// Package autograd implements reverse-mode automatic differentiation
// over the operation graph recorded on tensors. Each differentiable
// operation contributes a Rule that scatters the output gradient into
// the gradients of its inputs.
package autograd

import (
	"github.com/pkg/errors"

	"github.com/flintml/flint/tensor"
)

// Rule propagates the gradient of an operation's output into the
// gradient buffers of its inputs. Rules accumulate: they add into the
// existing buffers so tensors consumed by several operations collect
// contributions from every consumer.
type Rule func(out *tensor.Tensor)

// Rules maps operation names to their backward rules.
type Rules map[string]Rule

// Backward runs reverse-mode differentiation starting at root, which
// is typically a single-element loss tensor. The root's gradient is
// seeded with ones, then nodes are visited in reverse topological
// order so every node's gradient is complete before its rule fires.
func Backward(root *tensor.Tensor, rules Rules) error {
	if root == nil {
		return errors.New("autograd: nil root")
	}
	if !root.RequiresGrad() {
		return errors.New("autograd: root does not require grad")
	}

	order := topoSort(root)

	seed := root.GradBuffer()
	for i := range seed {
		seed[i] = 1
	}

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		op := node.Op()
		if op == "" {
			continue // leaf
		}
		rule, ok := rules[op]
		if !ok {
			return errors.Errorf("autograd: no backward rule for %q", op)
		}
		rule(node)
	}
	return nil
}

// topoSort returns the nodes reachable from root in topological order
// (inputs before outputs), via iterative depth-first postorder.
func topoSort(root *tensor.Tensor) []*tensor.Tensor {
	var order []*tensor.Tensor
	visited := make(map[*tensor.Tensor]bool)

	type frame struct {
		node     *tensor.Tensor
		expanded bool
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		i := len(stack) - 1
		if stack[i].expanded {
			order = append(order, stack[i].node)
			stack = stack[:i]
			continue
		}
		node := stack[i].node
		if visited[node] {
			stack = stack[:i]
			continue
		}
		visited[node] = true
		stack[i].expanded = true
		for _, in := range node.Inputs() {
			if !visited[in] {
				stack = append(stack, frame{node: in})
			}
		}
	}
	return order
}
