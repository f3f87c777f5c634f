package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// gruLayer is a single gated recurrent unit layer operating on batched
// timesteps. Weight rows are grouped into the three gate blocks in
// (reset, update, new) order; biases are stored as 1-row matrices.
type gruLayer struct {
	inSize int
	hidden int

	wih *mat.Dense // (3H x in)
	whh *mat.Dense // (3H x H)
	bih *mat.Dense // (1 x 3H)
	bhh *mat.Dense // (1 x 3H)

	gwih *mat.Dense
	gwhh *mat.Dense
	gbih *mat.Dense
	gbhh *mat.Dense
}

// gruStep caches one timestep's intermediates for backpropagation.
type gruStep struct {
	x     *mat.Dense // (B x in)
	hPrev *mat.Dense // (B x H)
	r     *mat.Dense // (B x H)
	z     *mat.Dense // (B x H)
	n     *mat.Dense // (B x H)
	ghn   *mat.Dense // (B x H) hidden contribution to the new gate, pre-reset
}

// gruCache is the full forward trace of one sequence through the layer.
type gruCache struct {
	steps []gruStep
	hs    []*mat.Dense // (B x H) output per timestep
}

func newGRULayer(inSize, hidden int, rng *rand.Rand) *gruLayer {
	l := &gruLayer{
		inSize: inSize,
		hidden: hidden,
		wih:    mat.NewDense(3*hidden, inSize, nil),
		whh:    mat.NewDense(3*hidden, hidden, nil),
		bih:    mat.NewDense(1, 3*hidden, nil),
		bhh:    mat.NewDense(1, 3*hidden, nil),
		gwih:   mat.NewDense(3*hidden, inSize, nil),
		gwhh:   mat.NewDense(3*hidden, hidden, nil),
		gbih:   mat.NewDense(1, 3*hidden, nil),
		gbhh:   mat.NewDense(1, 3*hidden, nil),
	}

	// Uniform(-1/sqrt(H), 1/sqrt(H)) for all weights and biases.
	bound := 1.0 / math.Sqrt(float64(hidden))
	initUniform(l.wih, bound, rng)
	initUniform(l.whh, bound, rng)
	initUniform(l.bih, bound, rng)
	initUniform(l.bhh, bound, rng)
	return l
}

// forward runs the layer over a sequence of batched inputs, starting from a
// zero hidden state. xs holds one (B x in) matrix per timestep.
func (l *gruLayer) forward(xs []*mat.Dense) *gruCache {
	batch, _ := xs[0].Dims()
	h := mat.NewDense(batch, l.hidden, nil)

	cache := &gruCache{
		steps: make([]gruStep, len(xs)),
		hs:    make([]*mat.Dense, len(xs)),
	}

	for t, x := range xs {
		gi := mat.NewDense(batch, 3*l.hidden, nil)
		gi.Mul(x, l.wih.T())
		addRowVector(gi, l.bih)

		gh := mat.NewDense(batch, 3*l.hidden, nil)
		gh.Mul(h, l.whh.T())
		addRowVector(gh, l.bhh)

		r := mat.NewDense(batch, l.hidden, nil)
		z := mat.NewDense(batch, l.hidden, nil)
		n := mat.NewDense(batch, l.hidden, nil)
		ghn := mat.NewDense(batch, l.hidden, nil)
		hNext := mat.NewDense(batch, l.hidden, nil)

		for b := 0; b < batch; b++ {
			for j := 0; j < l.hidden; j++ {
				rv := sigmoid(gi.At(b, j) + gh.At(b, j))
				zv := sigmoid(gi.At(b, l.hidden+j) + gh.At(b, l.hidden+j))
				ghnv := gh.At(b, 2*l.hidden+j)
				nv := math.Tanh(gi.At(b, 2*l.hidden+j) + rv*ghnv)

				r.Set(b, j, rv)
				z.Set(b, j, zv)
				ghn.Set(b, j, ghnv)
				n.Set(b, j, nv)
				hNext.Set(b, j, (1-zv)*nv+zv*h.At(b, j))
			}
		}

		cache.steps[t] = gruStep{x: x, hPrev: h, r: r, z: z, n: n, ghn: ghn}
		cache.hs[t] = hNext
		h = hNext
	}

	return cache
}

// backward backpropagates through the whole sequence. dhs holds the gradient
// of the loss with respect to each timestep's output (nil entries mean zero).
// Weight gradients accumulate into the layer's grad matrices; the returned
// slice is the gradient with respect to each timestep's input.
func (l *gruLayer) backward(cache *gruCache, dhs []*mat.Dense) []*mat.Dense {
	batch, _ := cache.hs[0].Dims()
	T := len(cache.steps)

	dxs := make([]*mat.Dense, T)
	dhCarry := mat.NewDense(batch, l.hidden, nil)

	dgi := mat.NewDense(batch, 3*l.hidden, nil)
	dgh := mat.NewDense(batch, 3*l.hidden, nil)

	for t := T - 1; t >= 0; t-- {
		step := cache.steps[t]

		dhNext := mat.NewDense(batch, l.hidden, nil)
		if dhs[t] != nil {
			dhNext.Add(dhCarry, dhs[t])
		} else {
			dhNext.Copy(dhCarry)
		}

		dhPrev := mat.NewDense(batch, l.hidden, nil)
		for b := 0; b < batch; b++ {
			for j := 0; j < l.hidden; j++ {
				dh := dhNext.At(b, j)
				rv := step.r.At(b, j)
				zv := step.z.At(b, j)
				nv := step.n.At(b, j)
				ghnv := step.ghn.At(b, j)
				hp := step.hPrev.At(b, j)

				dz := dh * (hp - nv) * zv * (1 - zv)
				dn := dh * (1 - zv) * (1 - nv*nv)
				dghn := dn * rv
				dr := dn * ghnv * rv * (1 - rv)

				dgi.Set(b, j, dr)
				dgi.Set(b, l.hidden+j, dz)
				dgi.Set(b, 2*l.hidden+j, dn)
				dgh.Set(b, j, dr)
				dgh.Set(b, l.hidden+j, dz)
				dgh.Set(b, 2*l.hidden+j, dghn)

				dhPrev.Set(b, j, dh*zv)
			}
		}

		accumulateMulT(l.gwih, dgi, step.x)     // gwih += dgi^T x
		accumulateMulT(l.gwhh, dgh, step.hPrev) // gwhh += dgh^T hPrev
		accumulateColSums(l.gbih, dgi)
		accumulateColSums(l.gbhh, dgh)

		dx := mat.NewDense(batch, l.inSize, nil)
		dx.Mul(dgi, l.wih)
		dxs[t] = dx

		var dhFromGates mat.Dense
		dhFromGates.Mul(dgh, l.whh)
		dhPrev.Add(dhPrev, &dhFromGates)
		dhCarry = dhPrev
	}

	return dxs
}

func (l *gruLayer) params(prefix string) []*paramRef {
	return []*paramRef{
		{name: prefix + ".wih", val: l.wih, grad: l.gwih},
		{name: prefix + ".whh", val: l.whh, grad: l.gwhh},
		{name: prefix + ".bih", val: l.bih, grad: l.gbih},
		{name: prefix + ".bhh", val: l.bhh, grad: l.gbhh},
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// initUniform fills m with Uniform(-bound, bound) values.
func initUniform(m *mat.Dense, bound float64, rng *rand.Rand) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, (rng.Float64()*2-1)*bound)
		}
	}
}

// addRowVector adds a (1 x C) row vector to every row of m.
func addRowVector(m, row *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+row.At(0, j))
		}
	}
}

// accumulateMulT computes dst += a^T b.
func accumulateMulT(dst, a, b *mat.Dense) {
	var prod mat.Dense
	prod.Mul(a.T(), b)
	dst.Add(dst, &prod)
}

// accumulateColSums adds the column sums of m into the (1 x C) dst.
func accumulateColSums(dst, m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		sum := dst.At(0, j)
		for i := 0; i < r; i++ {
			sum += m.At(i, j)
		}
		dst.Set(0, j, sum)
	}
}
