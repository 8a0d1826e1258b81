package reco

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// system is a weighted linear least-squares problem A·δ ≈ r, with
// per-row standard deviations.
type system struct {
	a     *mat.Dense
	r     []float64
	sigma []float64
}

// equilibrate returns B = W^½·A·D⁻¹ and b = W^½·r, where D holds the column
// norms of W^½·A. ok is false when a column carries no information.
func (s system) equilibrate() (b *mat.Dense, rhs *mat.VecDense, scale []float64, ok bool) {
	m, n := s.a.Dims()
	b = mat.NewDense(m, n, nil)
	rhs = mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		w := 1 / s.sigma[i]
		for j := 0; j < n; j++ {
			b.Set(i, j, w*s.a.At(i, j))
		}
		rhs.SetVec(i, w*s.r[i])
	}
	scale = make([]float64, n)
	for j := 0; j < n; j++ {
		norm := mat.Norm(b.ColView(j), 2)
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return nil, nil, nil, false
		}
		scale[j] = norm
		for i := 0; i < m; i++ {
			b.Set(i, j, b.At(i, j)/norm)
		}
	}
	return b, rhs, scale, true
}

// solve returns the least-squares step and the numerical rank of the
// equilibrated system. The step is nil when the rank is below the number of
// parameters.
func (s system) solve(rcond float64) (step []float64, rank int) {
	_, n := s.a.Dims()
	b, rhs, scale, ok := s.equilibrate()
	if !ok {
		return nil, 0
	}
	var svd mat.SVD
	if !svd.Factorize(b, mat.SVDThin) {
		return nil, 0
	}
	rank = svd.Rank(rcond)
	if rank < n {
		return nil, rank
	}
	var y mat.VecDense
	svd.SolveVecTo(&y, rhs, rank)
	step = make([]float64, n)
	for j := range step {
		step[j] = y.AtVec(j) / scale[j]
	}
	return step, rank
}

// covariance returns (AᵀWA)⁻¹, computed on the equilibrated system for
// stability and scaled back.
func (s system) covariance() (*mat.SymDense, bool) {
	b, _, scale, ok := s.equilibrate()
	if !ok {
		return nil, false
	}
	_, n := b.Dims()
	var normal mat.SymDense
	normal.SymOuterK(1, b.T())
	var chol mat.Cholesky
	if !chol.Factorize(&normal) {
		return nil, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		// A Condition error still leaves a usable inverse.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, false
		}
	}
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, inv.At(i, j)/(scale[i]*scale[j]))
		}
	}
	return cov, true
}

// chiSquare returns Σ (r_i / σ_i)².
func chiSquare(r, sigma []float64) float64 {
	var chi2 float64
	for i := range r {
		z := r[i] / sigma[i]
		chi2 += z * z
	}
	return chi2
}
