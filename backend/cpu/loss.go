package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/flintml/flint/tensor"
)

const lossEpsilon = 1e-7

// MSE computes the mean squared error between predictions and targets,
// returned as a single-element tensor.
func (c *Backend) MSE(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(pred, target); err != nil {
		return nil, err
	}
	p, t := pred.Data(), target.Data()
	var sum float64
	for i := range p {
		d := float64(p[i] - t[i])
		sum += d * d
	}
	return scalar(float32(sum / float64(len(p)))), nil
}

// CrossEntropy computes -sum(target * log(pred)) per row, averaged over
// rows. Predictions are expected to be probabilities, typically softmax
// output; they are clamped away from zero before the log.
func (c *Backend) CrossEntropy(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(pred, target); err != nil {
		return nil, err
	}
	cols := pred.Shape()[pred.Rank()-1]
	rows := pred.NumElements() / cols

	p, t := pred.Data(), target.Data()
	var sum float64
	for i := range p {
		v := float64(p[i])
		if v < lossEpsilon {
			v = lossEpsilon
		}
		sum -= float64(t[i]) * math.Log(v)
	}
	return scalar(float32(sum / float64(rows))), nil
}

// BinaryCrossEntropy computes the element-wise binary cross-entropy
// -(t*log(p) + (1-t)*log(1-p)), averaged over all elements.
func (c *Backend) BinaryCrossEntropy(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkLossShapes(pred, target); err != nil {
		return nil, err
	}
	p, t := pred.Data(), target.Data()
	var sum float64
	for i := range p {
		v := math.Min(math.Max(float64(p[i]), lossEpsilon), 1-lossEpsilon)
		sum -= float64(t[i])*math.Log(v) + (1-float64(t[i]))*math.Log(1-v)
	}
	return scalar(float32(sum / float64(len(p)))), nil
}

func checkLossShapes(pred, target *tensor.Tensor) error {
	if pred == nil || target == nil {
		return errors.New("cpu: nil operand")
	}
	if !pred.Shape().Equal(target.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "loss: prediction %v, target %v", pred.Shape(), target.Shape())
	}
	return nil
}

func scalar(v float32) *tensor.Tensor {
	t := tensor.Zeros(tensor.Shape{1})
	t.Data()[0] = v
	return t
}
