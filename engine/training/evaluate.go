package training

import (
	"fmt"
	"math"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/pkg/fn"
)

// Scores are regression quality measures on a held-out set.
type Scores struct {
	N    int     `json:"n"`
	MSE  float64 `json:"mse"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

type partial struct {
	n                     int
	sse, sae, sumY, sumY2 float64
	err                   error
}

type chunk struct {
	x [][]float64
	y []float64
}

// chunkSize is the number of rows scored per worker task.
const chunkSize = 256

// Evaluate scores m on (x, y) with the rows split across workers.
func Evaluate(m artifact.Regressor, x [][]float64, y []float64, workers int) (Scores, error) {
	if len(x) == 0 {
		return Scores{}, ErrNoSamples
	}
	if len(x) != len(y) {
		return Scores{}, fmt.Errorf("training: evaluate: %d rows, %d targets", len(x), len(y))
	}
	var chunks []chunk
	for i := 0; i < len(x); i += chunkSize {
		end := min(i+chunkSize, len(x))
		chunks = append(chunks, chunk{x: x[i:end], y: y[i:end]})
	}

	parts := fn.ParMap(chunks, workers, func(c chunk) partial {
		var p partial
		for i, row := range c.x {
			pred, err := m.Predict(row)
			if err != nil {
				p.err = err
				return p
			}
			d := c.y[i] - pred
			p.n++
			p.sse += d * d
			p.sae += math.Abs(d)
			p.sumY += c.y[i]
			p.sumY2 += c.y[i] * c.y[i]
		}
		return p
	})

	total := fn.Reduce(parts, partial{}, func(acc, p partial) partial {
		if acc.err == nil {
			acc.err = p.err
		}
		acc.n += p.n
		acc.sse += p.sse
		acc.sae += p.sae
		acc.sumY += p.sumY
		acc.sumY2 += p.sumY2
		return acc
	})
	if total.err != nil {
		return Scores{}, fmt.Errorf("training: evaluate: %w", total.err)
	}

	n := float64(total.n)
	s := Scores{N: total.n, MSE: total.sse / n, MAE: total.sae / n}
	s.RMSE = math.Sqrt(s.MSE)
	if sst := total.sumY2 - total.sumY*total.sumY/n; sst > 0 {
		s.R2 = 1 - total.sse/sst
	}
	return s, nil
}
