package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// adam implements the Adam first-order adaptive optimizer.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int

	m map[string]*mat.Dense
	v map[string]*mat.Dense
}

func newAdam(lr float64) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make(map[string]*mat.Dense),
		v:     make(map[string]*mat.Dense),
	}
}

// step applies one update to every parameter from its accumulated gradient.
func (a *adam) step(params []*paramRef) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, p := range params {
		r, c := p.val.Dims()

		m, ok := a.m[p.name]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[p.name] = m
			a.v[p.name] = mat.NewDense(r, c, nil)
		}
		v := a.v[p.name]

		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g := p.grad.At(i, j)
				mv := a.beta1*m.At(i, j) + (1-a.beta1)*g
				vv := a.beta2*v.At(i, j) + (1-a.beta2)*g*g
				m.Set(i, j, mv)
				v.Set(i, j, vv)

				mHat := mv / c1
				vHat := vv / c2
				p.val.Set(i, j, p.val.At(i, j)-a.lr*mHat/(math.Sqrt(vHat)+a.eps))
			}
		}
	}
}
