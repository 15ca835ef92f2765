package pipeline

import "math"

// logistic is a fitted linear model: one coefficient row for binary
// problems, one row per class for multinomial ones.
type logistic struct {
	coef      [][]float64
	intercept []float64
}

func (l *logistic) score(x []float64) ([]float64, error) {
	out := make([]float64, len(l.coef))
	for i, row := range l.coef {
		f := l.intercept[i]
		for j, w := range row {
			f += w * x[j]
		}
		out[i] = f
	}
	return out, nil
}

func (l *logistic) probabilities() bool { return false }
func (l *logistic) close() error        { return nil }

// Calibration holds sigmoid (Platt) parameters, one pair per decision value:
// p = 1 / (1 + exp(A*f + B)).
type Calibration struct {
	A []float64
	B []float64
}

func (c *Calibration) apply(i int, f float64) float64 {
	return 1.0 / (1.0 + math.Exp(c.A[i]*f+c.B[i]))
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

func softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
