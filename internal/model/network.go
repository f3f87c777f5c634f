// Package model implements the sequence classifier: a two-layer gated
// recurrent network over fixed-length frame feature sequences, followed by a
// small dense head producing unnormalized class scores. The architecture is
// fixed because the exporter must reproduce it node for node.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Architecture constants. These are part of the export contract and must not
// change independently of the exporter.
const (
	// HiddenSize is the GRU hidden state width of both layers.
	HiddenSize = 64
	// HeadHidden is the width of the first dense projection.
	HeadHidden = 32
	// interLayerDropout is applied to layer-0 outputs during training.
	interLayerDropout = 0.2
	// headDropout is applied after the head nonlinearity during training.
	headDropout = 0.3
)

// Config describes a classifier's input and output shape. It must match the
// feature layout used at collection time, or the model is meaningless.
type Config struct {
	SequenceLength int
	NumFeatures    int
	NumClasses     int
}

// Validate checks that all dimensions are usable.
func (c Config) Validate() error {
	if c.SequenceLength <= 0 {
		return fmt.Errorf("sequence length %d must be positive", c.SequenceLength)
	}
	if c.NumFeatures <= 0 {
		return fmt.Errorf("feature count %d must be positive", c.NumFeatures)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("class count %d must be at least 2", c.NumClasses)
	}
	return nil
}

// paramRef pairs a trainable weight matrix with its gradient accumulator.
type paramRef struct {
	name string
	val  *mat.Dense
	grad *mat.Dense
}

// Network is the sequence classifier.
type Network struct {
	cfg Config

	gru0 *gruLayer
	gru1 *gruLayer

	fc1W *mat.Dense // (32 x 64)
	fc1B *mat.Dense // (1 x 32)
	fc2W *mat.Dense // (C x 32)
	fc2B *mat.Dense // (1 x C)

	gfc1W *mat.Dense
	gfc1B *mat.Dense
	gfc2W *mat.Dense
	gfc2B *mat.Dense

	rng *rand.Rand
}

// NewNetwork creates a classifier with randomly initialized weights. The
// same seed always produces the same initial weights.
func NewNetwork(cfg Config, seed int64) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	n := &Network{
		cfg:   cfg,
		gru0:  newGRULayer(cfg.NumFeatures, HiddenSize, rng),
		gru1:  newGRULayer(HiddenSize, HiddenSize, rng),
		fc1W:  mat.NewDense(HeadHidden, HiddenSize, nil),
		fc1B:  mat.NewDense(1, HeadHidden, nil),
		fc2W:  mat.NewDense(cfg.NumClasses, HeadHidden, nil),
		fc2B:  mat.NewDense(1, cfg.NumClasses, nil),
		gfc1W: mat.NewDense(HeadHidden, HiddenSize, nil),
		gfc1B: mat.NewDense(1, HeadHidden, nil),
		gfc2W: mat.NewDense(cfg.NumClasses, HeadHidden, nil),
		gfc2B: mat.NewDense(1, cfg.NumClasses, nil),
		rng:   rng,
	}

	initUniform(n.fc1W, 1.0/math.Sqrt(float64(HiddenSize)), rng)
	initUniform(n.fc1B, 1.0/math.Sqrt(float64(HiddenSize)), rng)
	initUniform(n.fc2W, 1.0/math.Sqrt(float64(HeadHidden)), rng)
	initUniform(n.fc2B, 1.0/math.Sqrt(float64(HeadHidden)), rng)

	return n, nil
}

// Config returns the network's shape configuration.
func (n *Network) Config() Config {
	return n.cfg
}

// forwardCache traces one forward pass for backpropagation.
type forwardCache struct {
	l0, l1    *gruCache
	dropMasks []*mat.Dense // inter-layer dropout, one per timestep (nil in eval)
	last      *mat.Dense   // (B x H) last timestep of layer 1
	a1        *mat.Dense   // (B x 32) pre-activation of fc1
	h1        *mat.Dense   // (B x 32) post relu+dropout
	headMask  *mat.Dense   // head dropout mask (nil in eval)
}

// forward runs a batch of sequences through the network. xs holds one
// (B x F) matrix per timestep. With train set, dropout is active and the
// cache can be fed to backward.
func (n *Network) forward(xs []*mat.Dense, train bool) (*mat.Dense, *forwardCache) {
	cache := &forwardCache{}

	cache.l0 = n.gru0.forward(xs)

	// Dropout between the recurrent layers, fresh mask per timestep.
	mid := cache.l0.hs
	if train && interLayerDropout > 0 {
		cache.dropMasks = make([]*mat.Dense, len(mid))
		dropped := make([]*mat.Dense, len(mid))
		for t, h := range mid {
			mask := n.dropoutMask(h, interLayerDropout)
			cache.dropMasks[t] = mask
			d := mat.NewDense(h.RawMatrix().Rows, h.RawMatrix().Cols, nil)
			d.MulElem(h, mask)
			dropped[t] = d
		}
		mid = dropped
	}

	cache.l1 = n.gru1.forward(mid)
	cache.last = cache.l1.hs[len(cache.l1.hs)-1]

	batch, _ := cache.last.Dims()
	a1 := mat.NewDense(batch, HeadHidden, nil)
	a1.Mul(cache.last, n.fc1W.T())
	addRowVector(a1, n.fc1B)
	cache.a1 = a1

	h1 := mat.NewDense(batch, HeadHidden, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < HeadHidden; j++ {
			h1.Set(b, j, math.Max(0, a1.At(b, j)))
		}
	}
	if train && headDropout > 0 {
		cache.headMask = n.dropoutMask(h1, headDropout)
		h1.MulElem(h1, cache.headMask)
	}
	cache.h1 = h1

	logits := mat.NewDense(batch, n.cfg.NumClasses, nil)
	logits.Mul(h1, n.fc2W.T())
	addRowVector(logits, n.fc2B)

	return logits, cache
}

// backward accumulates gradients for one forward pass given the gradient of
// the loss with respect to the logits.
func (n *Network) backward(cache *forwardCache, dlogits *mat.Dense) {
	batch, _ := dlogits.Dims()

	accumulateMulT(n.gfc2W, dlogits, cache.h1)
	accumulateColSums(n.gfc2B, dlogits)

	dh1 := mat.NewDense(batch, HeadHidden, nil)
	dh1.Mul(dlogits, n.fc2W)
	if cache.headMask != nil {
		dh1.MulElem(dh1, cache.headMask)
	}

	// ReLU gate
	da1 := mat.NewDense(batch, HeadHidden, nil)
	for b := 0; b < batch; b++ {
		for j := 0; j < HeadHidden; j++ {
			if cache.a1.At(b, j) > 0 {
				da1.Set(b, j, dh1.At(b, j))
			}
		}
	}

	accumulateMulT(n.gfc1W, da1, cache.last)
	accumulateColSums(n.gfc1B, da1)

	dlast := mat.NewDense(batch, HiddenSize, nil)
	dlast.Mul(da1, n.fc1W)

	// Only the last timestep of layer 1 feeds the head.
	dhs1 := make([]*mat.Dense, len(cache.l1.hs))
	dhs1[len(dhs1)-1] = dlast
	dmid := n.gru1.backward(cache.l1, dhs1)

	if cache.dropMasks != nil {
		for t := range dmid {
			dmid[t].MulElem(dmid[t], cache.dropMasks[t])
		}
	}
	n.gru0.backward(cache.l0, dmid)
}

// dropoutMask builds an inverted-dropout mask shaped like ref.
func (n *Network) dropoutMask(ref *mat.Dense, p float64) *mat.Dense {
	r, c := ref.Dims()
	mask := mat.NewDense(r, c, nil)
	scale := 1.0 / (1.0 - p)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if n.rng.Float64() >= p {
				mask.Set(i, j, scale)
			}
		}
	}
	return mask
}

// params lists every trainable parameter with its gradient accumulator.
func (n *Network) params() []*paramRef {
	ps := n.gru0.params("gru0")
	ps = append(ps, n.gru1.params("gru1")...)
	ps = append(ps,
		&paramRef{name: "fc1.w", val: n.fc1W, grad: n.gfc1W},
		&paramRef{name: "fc1.b", val: n.fc1B, grad: n.gfc1B},
		&paramRef{name: "fc2.w", val: n.fc2W, grad: n.gfc2W},
		&paramRef{name: "fc2.b", val: n.fc2B, grad: n.gfc2B},
	)
	return ps
}

// zeroGrads clears every gradient accumulator.
func (n *Network) zeroGrads() {
	for _, p := range n.params() {
		p.grad.Zero()
	}
}

// batchMatrices converts sequence samples into per-timestep batch matrices.
func batchMatrices(samples [][][]float32, seqLen, numFeatures int) ([]*mat.Dense, error) {
	batch := len(samples)
	if batch == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	xs := make([]*mat.Dense, seqLen)
	for t := 0; t < seqLen; t++ {
		x := mat.NewDense(batch, numFeatures, nil)
		for b, sample := range samples {
			if len(sample) != seqLen {
				return nil, fmt.Errorf("sample %d has %d frames, want %d", b, len(sample), seqLen)
			}
			frame := sample[t]
			if len(frame) != numFeatures {
				return nil, fmt.Errorf("sample %d frame %d has %d features, want %d", b, t, len(frame), numFeatures)
			}
			for j, v := range frame {
				x.Set(b, j, float64(v))
			}
		}
		xs[t] = x
	}
	return xs, nil
}

// Predict runs one sequence through the network and returns the raw
// (unnormalized) class scores.
func (n *Network) Predict(sample [][]float32) ([]float64, error) {
	xs, err := batchMatrices([][][]float32{sample}, n.cfg.SequenceLength, n.cfg.NumFeatures)
	if err != nil {
		return nil, err
	}

	logits, _ := n.forward(xs, false)
	scores := make([]float64, n.cfg.NumClasses)
	for j := range scores {
		scores[j] = logits.At(0, j)
	}
	return scores, nil
}

// Classify returns the index of the highest-scoring class for a sequence.
func (n *Network) Classify(sample [][]float32) (int, error) {
	scores, err := n.Predict(sample)
	if err != nil {
		return 0, err
	}

	best := 0
	for j := 1; j < len(scores); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	return best, nil
}
