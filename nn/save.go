package nn

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/flintml/flint/engine"
	"github.com/flintml/flint/tensor"
)

// Binary model layout, all little-endian:
//
//	u32 layer count
//	per layer: u32 name length, name bytes, u32 parameter count
//	per parameter: u32 rank, u32 dims..., raw float32 data
//
// Activation layers persist with zero parameters, so a saved file
// fully describes the network topology.

// layerBuilders rebuilds layers by persisted name.
var layerBuilders = map[string]func(params []*tensor.Tensor) (Layer, error){
	"linear": func(params []*tensor.Tensor) (Layer, error) {
		if len(params) != 2 {
			return nil, errors.Errorf("linear: expected 2 parameters, got %d", len(params))
		}
		w, b := params[0], params[1]
		if w.Rank() != 2 || b.Rank() != 1 || w.Shape()[1] != b.Shape()[0] {
			return nil, errors.Errorf("linear: inconsistent shapes %v and %v", w.Shape(), b.Shape())
		}
		return &Linear{
			Weight: w.SetRequiresGrad(true),
			Bias:   b.SetRequiresGrad(true),
		}, nil
	},
	"relu":    activationBuilder(ReLU),
	"sigmoid": activationBuilder(Sigmoid),
	"tanh":    activationBuilder(Tanh),
	"softmax": activationBuilder(Softmax),
}

func activationBuilder(ctor func() *Activation) func(params []*tensor.Tensor) (Layer, error) {
	return func(params []*tensor.Tensor) (Layer, error) {
		if len(params) != 0 {
			return nil, errors.Errorf("activation: expected 0 parameters, got %d", len(params))
		}
		return ctor(), nil
	}
}

// Save writes the network to w in the binary model layout.
func (n *Network) Save(w io.Writer) error {
	if err := writeUint32(w, uint32(len(n.layers))); err != nil {
		return errors.Wrap(err, "nn: save")
	}
	for _, layer := range n.layers {
		name := layer.Name()
		if err := writeUint32(w, uint32(len(name))); err != nil {
			return errors.Wrap(err, "nn: save")
		}
		if _, err := io.WriteString(w, name); err != nil {
			return errors.Wrap(err, "nn: save")
		}

		params := layer.Parameters()
		if err := writeUint32(w, uint32(len(params))); err != nil {
			return errors.Wrap(err, "nn: save")
		}
		for _, p := range params {
			if err := writeUint32(w, uint32(p.Rank())); err != nil {
				return errors.Wrap(err, "nn: save")
			}
			for _, dim := range p.Shape() {
				if err := writeUint32(w, uint32(dim)); err != nil {
					return errors.Wrap(err, "nn: save")
				}
			}
			if err := binary.Write(w, binary.LittleEndian, p.Data()); err != nil {
				return errors.Wrap(err, "nn: save")
			}
		}
	}
	return nil
}

// Load reads a network written by Save. The engine argument binds the
// restored layers to an operation set; parameter tensors come back
// trainable.
func Load(r io.Reader, _ *engine.Engine) (*Network, error) {
	layerCount, err := readUint32(r)
	if err != nil {
		return nil, errors.Wrap(err, "nn: load")
	}

	layers := make([]Layer, 0, layerCount)
	for i := uint32(0); i < layerCount; i++ {
		nameLen, err := readUint32(r)
		if err != nil {
			return nil, errors.Wrap(err, "nn: load")
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, errors.Wrap(err, "nn: load")
		}
		name := string(nameBytes)

		paramCount, err := readUint32(r)
		if err != nil {
			return nil, errors.Wrap(err, "nn: load")
		}
		params := make([]*tensor.Tensor, 0, paramCount)
		for p := uint32(0); p < paramCount; p++ {
			param, err := readParam(r)
			if err != nil {
				return nil, errors.Wrapf(err, "nn: load layer %d (%s)", i, name)
			}
			params = append(params, param)
		}

		build, ok := layerBuilders[name]
		if !ok {
			return nil, errors.Errorf("nn: load: unknown layer type %q", name)
		}
		layer, err := build(params)
		if err != nil {
			return nil, errors.Wrapf(err, "nn: load layer %d", i)
		}
		layers = append(layers, layer)
	}
	return Sequential(layers...), nil
}

func readParam(r io.Reader) (*tensor.Tensor, error) {
	rank, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, rank)
	for d := range shape {
		dim, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		shape[d] = int(dim)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	t, err := tensor.New(shape)
	if err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, t.Data()); err != nil {
		return nil, err
	}
	return t, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
