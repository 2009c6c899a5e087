package training

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/engine/domain"
)

// ErrNoSamples is returned when cleaning leaves nothing to fit.
var ErrNoSamples = errors.New("training: no samples")

// rcond is the relative singular value cutoff for the least squares solve.
// One-hot groups plus the intercept are exactly collinear; their directions
// fall below it and get the minimum-norm solution.
const rcond = 1e-10

// FitEncoders fits the one-hot encoder on domain.OneHotColumns and one label
// vocabulary per domain.LabelColumns entry. Categories are sorted.
func FitEncoders(samples []Sample) (*artifact.OneHotEncoder, *artifact.LabelEncoders, error) {
	if len(samples) == 0 {
		return nil, nil, ErrNoSamples
	}
	cols := make([]artifact.OneHotColumn, 0, len(domain.OneHotColumns))
	for _, c := range domain.OneHotColumns {
		cols = append(cols, artifact.OneHotColumn{Name: c, Categories: uniqueSorted(samples, c)})
	}
	oh, err := artifact.NewOneHotEncoder(cols)
	if err != nil {
		return nil, nil, fmt.Errorf("training: fit one-hot: %w", err)
	}
	vocab := make(map[string][]string, len(domain.LabelColumns))
	for _, c := range domain.LabelColumns {
		vocab[c] = uniqueSorted(samples, c)
	}
	le, err := artifact.NewLabelEncoders(vocab)
	if err != nil {
		return nil, nil, fmt.Errorf("training: fit labels: %w", err)
	}
	return oh, le, nil
}

func uniqueSorted(samples []Sample, col string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range samples {
		v, _ := s.Record.Category(col)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// FitLinear fits y ≈ intercept + X·β by least squares. Columns are scaled
// to unit max-abs before the SVD solve and the coefficients scaled back.
func FitLinear(names []string, x [][]float64, y []float64) (*artifact.LinearModel, error) {
	n := len(x)
	if n == 0 {
		return nil, ErrNoSamples
	}
	if len(y) != n {
		return nil, fmt.Errorf("training: %d rows, %d targets", n, len(y))
	}
	p := len(names)

	scale := make([]float64, p)
	for j := 0; j < p; j++ {
		scale[j] = 1
		for i := 0; i < n; i++ {
			if a := math.Abs(x[i][j]); a > scale[j] {
				scale[j] = a
			}
		}
	}

	a := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("training: row %d has %d values, want %d", i, len(row), p)
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v/scale[j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("training: svd factorization failed")
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, fmt.Errorf("training: design matrix has rank 0")
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, mat.NewVecDense(n, append([]float64(nil), y...)), rank)

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j+1) / scale[j]
	}
	return artifact.NewLinearModel(names, beta.AtVec(0), coef)
}
