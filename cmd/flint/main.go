// Package main provides the flint CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/flintml/flint/engine"
	"github.com/flintml/flint/nn"
	"github.com/flintml/flint/optim"
	"github.com/flintml/flint/tensor"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)

	epochs := flag.Int("epochs", 2000, "training epochs for the demo")
	lr := flag.Float64("lr", 0.1, "learning rate")
	useGPU := flag.Bool("gpu", false, "use the WebGPU backend when available")
	modelPath := flag.String("model", "", "path to save the trained model")
	flag.Parse()

	switch flag.Arg(0) {
	case "version":
		fmt.Printf("flint %s\n", version)
	case "xor":
		if err := trainXOR(*epochs, float32(*lr), *useGPU, *modelPath); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("flint %s - tensor computation with autograd\n\n", version)
		fmt.Println("Commands:")
		fmt.Println("  version    Show version")
		fmt.Println("  xor        Train a small network on XOR")
	}
}

// trainXOR fits a 2-4-1 network to the XOR truth table, the usual
// smoke test for the full forward/backward/optimizer path.
func trainXOR(epochs int, lr float32, useGPU bool, modelPath string) error {
	var opts []engine.Option
	if useGPU {
		opts = append(opts, engine.WithGPU())
	}
	e := engine.New(opts...)
	defer e.Close()
	if useGPU && !e.Accelerated() {
		fmt.Println("gpu requested but unavailable, training on cpu")
	}

	x, err := tensor.FromSlice([]float32{0, 0, 0, 1, 1, 0, 1, 1}, tensor.Shape{4, 2})
	if err != nil {
		return err
	}
	y, err := tensor.FromSlice([]float32{0, 1, 1, 0}, tensor.Shape{4, 1})
	if err != nil {
		return err
	}

	net := nn.Sequential(
		nn.NewLinear(e, 2, 4),
		nn.Tanh(),
		nn.NewLinear(e, 4, 1),
		nn.Sigmoid(),
	)
	opt, err := optim.New("adam", net.Parameters(), optim.Config{LR: lr})
	if err != nil {
		return err
	}

	for epoch := 1; epoch <= epochs; epoch++ {
		pred, err := net.Forward(e, x)
		if err != nil {
			return err
		}
		loss, err := e.BinaryCrossEntropy(pred, y)
		if err != nil {
			return err
		}

		opt.ZeroGrad()
		if err := e.Backward(loss); err != nil {
			return err
		}
		opt.Step()

		if epoch%500 == 0 || epoch == 1 {
			fmt.Printf("epoch %4d  loss %.6f\n", epoch, loss.Item())
		}
	}

	pred, err := net.Forward(e, x)
	if err != nil {
		return err
	}
	fmt.Println("\ninput    target  prediction")
	for i := 0; i < 4; i++ {
		fmt.Printf("(%g, %g)   %g     %.4f\n",
			x.At(i, 0), x.At(i, 1), y.At(i, 0), pred.At(i, 0))
	}

	if modelPath != "" {
		f, err := os.Create(modelPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := net.Save(f); err != nil {
			return err
		}
		fmt.Printf("\nmodel saved to %s\n", modelPath)
	}
	return nil
}
