package regression

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/synthlik/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func randomTheta(n, p int, center []float64, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 0))
	theta := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			theta.Set(i, j, center[j]+rng.NormFloat64())
		}
	}
	return theta
}

func TestPairwiseCombinations(t *testing.T) {
	got := PairwiseCombinations(3)
	want := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 2}, {2, 2}}
	assert.Equal(t, want, got)
	assert.Len(t, PairwiseCombinations(4), 10)
	assert.Equal(t, 15, NumQuadraticColumns(4))
}

func TestQuadraticDesignMatrix(t *testing.T) {
	theta := mat.NewDense(1, 2, []float64{3, 5})
	x, combos := QuadraticDesignMatrix([]float64{1, 2}, theta)
	// d = (2, 3): bias, d0, d1, d0², d0·d1, d1²
	want := []float64{1, 2, 3, 4, 6, 9}
	assert.Equal(t, want, x.RawRowView(0))
	assert.Len(t, combos, 3)
}

func TestQuadraticLocalMuRecoversExactSurface(t *testing.T) {
	center := []float64{0.5, -1}
	theta := randomTheta(50, 2, center, 1)

	// s0 = 1 + 2d0 − d1 + 3d0² + 0.5·d0d1 − d1²; s1 = 4 − 0.5d1².
	s := mat.NewDense(50, 2, nil)
	for i := 0; i < 50; i++ {
		d0 := theta.At(i, 0) - center[0]
		d1 := theta.At(i, 1) - center[1]
		s.Set(i, 0, 1+2*d0-d1+3*d0*d0+0.5*d0*d1-d1*d1)
		s.Set(i, 1, 4-0.5*d1*d1)
	}

	mus, err := QuadraticLocalMu(center, theta, s)
	require.NoError(t, err)
	require.Len(t, mus, 2)

	m := mus[0]
	assert.InDelta(t, 1, m.Mu, 1e-9)
	assert.InDeltaSlice(t, []float64{2, -1}, m.Grad, 1e-9)
	assert.InDelta(t, 6, m.Hess.At(0, 0), 1e-9)
	assert.InDelta(t, 0.5, m.Hess.At(0, 1), 1e-9)
	assert.InDelta(t, 0.5, m.Hess.At(1, 0), 1e-9)
	assert.InDelta(t, -2, m.Hess.At(1, 1), 1e-9)
	for _, r := range m.Resid {
		assert.InDelta(t, 0, r, 1e-9)
	}

	assert.InDelta(t, 4, mus[1].Mu, 1e-9)
	assert.InDelta(t, -1, mus[1].Hess.At(1, 1), 1e-9)
	assert.InDelta(t, 0, mus[1].Hess.At(0, 0), 1e-9)

	assert.InDeltaSlice(t, []float64{1, 4}, Means(mus), 1e-9)
	j := Jacobian(mus)
	r, c := j.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.InDelta(t, 2, j.At(0, 0), 1e-9)

	res := Residuals(mus)
	r, c = res.Dims()
	assert.Equal(t, 50, r)
	assert.Equal(t, 2, c)
}

func TestQuadraticLocalMuResidualSign(t *testing.T) {
	center := []float64{0}
	theta := randomTheta(20, 1, center, 2)
	s := mat.NewDense(20, 1, nil)
	for i := 0; i < 20; i++ {
		s.Set(i, 0, 1)
	}
	s.Set(0, 0, 2)

	mus, err := QuadraticLocalMu(center, theta, s)
	require.NoError(t, err)
	// Fitted values sit below the outlier, so fitted − observed < 0.
	assert.Less(t, mus[0].Resid[0], 0.0)
}

func TestQuadraticLocalMuSingular(t *testing.T) {
	tests := []struct {
		name  string
		theta *mat.Dense
	}{
		{"too few rows", randomTheta(4, 2, []float64{0, 0}, 3)},
		{"identical rows", mat.NewDense(10, 2, make([]float64, 20))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := tt.theta.Dims()
			s := mat.NewDense(r, 1, nil)
			for i := 0; i < r; i++ {
				s.Set(i, 0, float64(i))
			}
			_, err := QuadraticLocalMu([]float64{0, 0}, tt.theta, s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrRegressionSingular), "got %v", err)
		})
	}
}

func TestQuadraticLocalMuDimensionMismatch(t *testing.T) {
	theta := randomTheta(10, 2, []float64{0, 0}, 4)
	_, err := QuadraticLocalMu([]float64{0, 0}, theta, mat.NewDense(9, 1, nil))
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)

	_, err = QuadraticLocalMu([]float64{0}, theta, mat.NewDense(10, 1, nil))
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestLinearRegression(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
		1, 3,
	})
	y := mat.NewDense(4, 1, []float64{1, 3, 5, 7})
	beta, fitted, err := LinearRegression(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1, beta.At(0, 0), 1e-12)
	assert.InDelta(t, 2, beta.At(1, 0), 1e-12)
	assert.InDelta(t, 7, fitted.At(3, 0), 1e-12)
}

func TestGammaGLMExact(t *testing.T) {
	n := 40
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := -1 + 2*float64(i)/float64(n-1)
		x.Set(i, 0, 1)
		x.Set(i, 1, v)
		y[i] = math.Exp(0.3 + 0.5*v)
	}
	beta, err := GammaGLM(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, beta[0], 1e-7)
	assert.InDelta(t, 0.5, beta[1], 1e-7)
}

func TestGammaGLMNoisy(t *testing.T) {
	n := 5000
	src := rand.NewPCG(7, 7)
	rng := rand.New(rand.NewPCG(8, 8))
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	const shape = 20.0
	for i := 0; i < n; i++ {
		v := rng.NormFloat64()
		x.Set(i, 0, 1)
		x.Set(i, 1, v)
		mu := math.Exp(-0.2 + 0.8*v)
		y[i] = distuv.Gamma{Alpha: shape, Beta: shape / mu, Src: src}.Rand()
	}
	beta, err := GammaGLM(x, y)
	require.NoError(t, err)
	assert.InDelta(t, -0.2, beta[0], 0.05)
	assert.InDelta(t, 0.8, beta[1], 0.05)
}

func TestGammaGLMErrors(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 1, 1})
	_, err := GammaGLM(x, []float64{0, 0, 0})
	assert.ErrorIs(t, err, errs.ErrRegressionSingular)

	_, err = GammaGLM(x, []float64{1, 2})
	assert.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestGLMLocalSigma(t *testing.T) {
	n := 60
	center := []float64{1}
	theta := mat.NewDense(n, 1, nil)
	resid := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		d := -1 + 2*float64(i)/float64(n-1)
		theta.Set(i, 0, center[0]+d)
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		// r0² = exp(0.2 + 0.4d) exactly; r1² = 2 everywhere.
		resid.Set(i, 0, sign*math.Exp((0.2+0.4*d)/2))
		resid.Set(i, 1, sign*math.Sqrt2)
	}

	ls, err := GLMLocalSigma(center, theta, resid)
	require.NoError(t, err)

	v0 := math.Exp(0.2)
	assert.InDelta(t, v0, ls.Sigma.At(0, 0), 1e-6)
	assert.InDelta(t, 2, ls.Sigma.At(1, 1), 1e-6)
	require.Len(t, ls.Grad, 1)
	assert.InDelta(t, v0*0.4, ls.Grad[0].At(0, 0), 1e-6)
	assert.InDelta(t, 0, ls.Grad[0].At(1, 1), 1e-6)

	// Off-diagonal derivative follows the average log-slope.
	s01 := ls.Sigma.At(0, 1)
	assert.Greater(t, s01, 0.0)
	assert.InDelta(t, s01*0.2, ls.Grad[0].At(0, 1), 1e-6)
	assert.Equal(t, ls.Sigma.At(0, 1), ls.Sigma.At(1, 0))
}

func TestResidualCorrelationConstantColumn(t *testing.T) {
	resid := mat.NewDense(4, 2, []float64{
		1, 5,
		-1, 5,
		2, 5,
		-2, 5,
	})
	corr := residualCorrelation(resid)
	assert.Equal(t, 1.0, corr.At(0, 0))
	assert.Equal(t, 0.0, corr.At(0, 1))
}
