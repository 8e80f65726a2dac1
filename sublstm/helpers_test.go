package sublstm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"gonum.org/v1/gonum/mat"
)

// newTestBackend returns the pure-Go backend the tests execute graphs on.
func newTestBackend() backends.Backend {
	return backends.MustNew()
}

// newTestContext returns a context whose variables initialize from a standard
// normal distribution with a fixed seed.
func newTestContext() *context.Context {
	ctx := context.New()
	ctx.SetParam(initializers.ParamInitialSeed, int64(42))
	return ctx.WithInitializer(initializers.RandomNormalFn(ctx, 1.0))
}

// randomMatrix fills a [rows][cols] matrix from a seeded normal distribution.
func randomMatrix(rng *rand.Rand, rows, cols int) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		m[i] = make([]float32, cols)
		for j := range m[i] {
			m[i][j] = float32(rng.NormFloat64())
		}
	}
	return m
}

// randomVector fills a length-n vector from a seeded normal distribution.
func randomVector(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

// flatValues copies a result tensor into a flat float32 slice.
func flatValues(t *testing.T, v *tensors.Tensor) []float32 {
	t.Helper()
	return tensors.MustCopyFlatData[float32](v)
}

// assertDims fails the test if v is not shaped exactly dims.
func assertDims(t *testing.T, v *tensors.Tensor, dims ...int) {
	t.Helper()
	if v.Shape().Rank() != len(dims) {
		t.Fatalf("expected rank %d, got shape %v", len(dims), v.Shape())
	}
	for i, d := range dims {
		if v.Shape().Dim(i) != d {
			t.Fatalf("expected dimensions %v, got shape %v", dims, v.Shape())
		}
	}
}

// Helper function to check if two float32 slices are approximately equal.
func approxEqual(a, b []float32, tolerance float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

func allFinite(a []float32) bool {
	for _, v := range a {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func anyNonZero(a []float32) bool {
	for _, v := range a {
		if v != 0 {
			return true
		}
	}
	return false
}

func sigmoid64(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// denseFrom converts a [][]float32 matrix into a float64 gonum matrix.
func denseFrom(data [][]float32) *mat.Dense {
	rows, cols := len(data), len(data[0])
	out := mat.NewDense(rows, cols, nil)
	for i := range data {
		for j := range data[i] {
			out.Set(i, j, float64(data[i][j]))
		}
	}
	return out
}

// referenceGates computes sigmoid(x·wIH^T + bIH + h·wHH^T + bHH) in float64
// with gonum, as the ground truth for the fused gate pre-activation.
func referenceGates(x, h, wIH, wHH [][]float32, bIH, bHH []float32) [][]float64 {
	var zi, zh mat.Dense
	zi.Mul(denseFrom(x), denseFrom(wIH).T())
	zh.Mul(denseFrom(h), denseFrom(wHH).T())
	rows, cols := zi.Dims()
	gates := make([][]float64, rows)
	for i := range gates {
		gates[i] = make([]float64, cols)
		for j := range gates[i] {
			gates[i][j] = sigmoid64(zi.At(i, j) + float64(bIH[j]) + zh.At(i, j) + float64(bHH[j]))
		}
	}
	return gates
}
