package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// HACMaxLags is the Newey-West lag truncation used by every fit.
const HACMaxLags = 1

// ci95 is the two-sided 95% normal critical value.
var ci95 = distuv.UnitNormal.Quantile(0.975)

// olsFit is the raw output of one least-squares solve.
type olsFit struct {
	params    []float64
	stdErrors []float64
	rSquared  float64
	rank      int
}

// errSingular reports a rank-deficient design; callers attach the instrument and window.
type errSingular struct {
	rank, cols int
}

func (e errSingular) Error() string {
	return fmt.Sprintf("design matrix has rank %d, need %d", e.rank, e.cols)
}

// fitOLS solves y = X b by SVD and computes HAC standard errors with a Bartlett
// kernel truncated at maxLags. The covariance is scaled by n/(n-k).
func fitOLS(x *mat.Dense, y []float64, maxLags int) (olsFit, error) {
	n, k := x.Dims()
	if n != len(y) {
		return olsFit{}, fmt.Errorf("design has %d rows but %d responses", n, len(y))
	}
	if n < k {
		return olsFit{}, errSingular{rank: n, cols: k}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return olsFit{}, errSingular{rank: 0, cols: k}
	}
	sv := svd.Values(nil)

	// Same cut-off as numpy's matrix_rank
	tol := sv[0] * float64(max(n, k)) * eps
	rank := 0
	for _, s := range sv {
		if s > tol {
			rank++
		}
	}
	if rank < k || sv[0] == 0 {
		return olsFit{}, errSingular{rank: rank, cols: k}
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// b = V S^-1 U'y
	yv := mat.NewVecDense(n, y)
	var uty mat.VecDense
	uty.MulVec(u.T(), yv)
	for i := 0; i < k; i++ {
		uty.SetVec(i, uty.AtVec(i)/sv[i])
	}
	var beta mat.VecDense
	beta.MulVec(&v, &uty)

	// (X'X)^-1 = V S^-2 V'
	vs := mat.NewDense(k, k, nil)
	vs.Apply(func(i, j int, val float64) float64 {
		return val / (sv[j] * sv[j])
	}, &v)
	var bread mat.Dense
	bread.Mul(vs, v.T())

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	resid := make([]float64, n)
	for t := 0; t < n; t++ {
		resid[t] = y[t] - fitted.AtVec(t)
	}

	meat := hacMeat(x, resid, maxLags)

	var tmp, cov mat.Dense
	tmp.Mul(&bread, meat)
	cov.Mul(&tmp, &bread)
	if n > k {
		cov.Scale(float64(n)/float64(n-k), &cov)
	}

	fit := olsFit{
		params:    make([]float64, k),
		stdErrors: make([]float64, k),
		rSquared:  rSquared(y, resid),
		rank:      rank,
	}
	for i := 0; i < k; i++ {
		fit.params[i] = beta.AtVec(i)
		fit.stdErrors[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}
	return fit, nil
}

// eps is float64 machine epsilon.
var eps = math.Nextafter(1, 2) - 1

// hacMeat builds sum_t e_t^2 x_t x_t' plus Bartlett-weighted lag cross products.
func hacMeat(x *mat.Dense, resid []float64, maxLags int) *mat.Dense {
	n, k := x.Dims()
	meat := mat.NewDense(k, k, nil)

	for t := 0; t < n; t++ {
		xt := x.RawRowView(t)
		e2 := resid[t] * resid[t]
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				meat.Set(i, j, meat.At(i, j)+e2*xt[i]*xt[j])
			}
		}
	}

	for lag := 1; lag <= maxLags && lag < n; lag++ {
		w := 1 - float64(lag)/float64(maxLags+1)
		for t := lag; t < n; t++ {
			xt := x.RawRowView(t)
			xs := x.RawRowView(t - lag)
			ee := w * resid[t] * resid[t-lag]
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					meat.Set(i, j, meat.At(i, j)+ee*(xt[i]*xs[j]+xs[i]*xt[j]))
				}
			}
		}
	}
	return meat
}

// rSquared is 1 - SSR/SST with SST centred on the mean response.
func rSquared(y, resid []float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssr, sst float64
	for t, v := range y {
		ssr += resid[t] * resid[t]
		d := v - mean
		sst += d * d
	}
	if sst == 0 {
		return 0
	}
	return 1 - ssr/sst
}

// zStat returns b/se, or 0 when the standard error is zero and b is zero.
func zStat(b, se float64) float64 {
	if se == 0 {
		if b == 0 {
			return 0
		}
		return math.Copysign(math.Inf(1), b)
	}
	return b / se
}

// pValue is the two-sided normal p-value of z.
func pValue(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}
