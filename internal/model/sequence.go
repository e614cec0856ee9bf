package model

import (
	"fmt"
	"math"
)

// SequenceModel is a single gated recurrent cell (LSTM-style) plus a linear
// head on the final hidden state. Weight matrices are row-major
// [hidden][input] / [hidden][hidden] nested arrays as exported by training.
type SequenceModel struct {
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`

	// Input-to-hidden weights per gate.
	Wi [][]float64 `json:"w_i"`
	Wf [][]float64 `json:"w_f"`
	Wo [][]float64 `json:"w_o"`
	Wc [][]float64 `json:"w_c"`

	// Hidden-to-hidden weights per gate.
	Ui [][]float64 `json:"u_i"`
	Uf [][]float64 `json:"u_f"`
	Uo [][]float64 `json:"u_o"`
	Uc [][]float64 `json:"u_c"`

	// Gate biases.
	Bi []float64 `json:"b_i"`
	Bf []float64 `json:"b_f"`
	Bo []float64 `json:"b_o"`
	Bc []float64 `json:"b_c"`

	// Linear output head.
	DenseW []float64 `json:"dense_w"`
	DenseB float64   `json:"dense_b"`
}

// validate checks every weight shape against InputSize/HiddenSize so that
// EvaluateSequence can index freely. Payloads come from an external export
// pipeline; a bad shape must surface as a parse error, never a panic.
func (s *SequenceModel) validate() error {
	if s.InputSize <= 0 || s.HiddenSize <= 0 {
		return fmt.Errorf("sequence model sizes must be positive: input=%d hidden=%d", s.InputSize, s.HiddenSize)
	}
	for name, m := range map[string][][]float64{
		"w_i": s.Wi, "w_f": s.Wf, "w_o": s.Wo, "w_c": s.Wc,
	} {
		if err := checkMatrix(name, m, s.HiddenSize, s.InputSize); err != nil {
			return err
		}
	}
	for name, m := range map[string][][]float64{
		"u_i": s.Ui, "u_f": s.Uf, "u_o": s.Uo, "u_c": s.Uc,
	} {
		if err := checkMatrix(name, m, s.HiddenSize, s.HiddenSize); err != nil {
			return err
		}
	}
	for name, b := range map[string][]float64{
		"b_i": s.Bi, "b_f": s.Bf, "b_o": s.Bo, "b_c": s.Bc,
	} {
		if len(b) != s.HiddenSize {
			return fmt.Errorf("sequence model %s has %d values, want %d", name, len(b), s.HiddenSize)
		}
	}
	if len(s.DenseW) != s.HiddenSize {
		return fmt.Errorf("sequence model dense_w has %d weights, want %d", len(s.DenseW), s.HiddenSize)
	}
	return nil
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("sequence model %s has %d rows, want %d", name, len(m), rows)
	}
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("sequence model %s row %d has %d columns, want %d", name, i, len(row), cols)
		}
	}
	return nil
}

// EvaluateSequence runs the recurrent cell across the window (oldest step
// first) and applies the linear head to the last hidden state.
func EvaluateSequence(s *SequenceModel, window [][]float64) (float64, error) {
	if len(window) == 0 {
		return 0, fmt.Errorf("sequence model requires a non-empty window")
	}

	h := make([]float64, s.HiddenSize)
	c := make([]float64, s.HiddenSize)

	for step, x := range window {
		if len(x) != s.InputSize {
			return 0, fmt.Errorf("window step %d has %d features, want %d", step, len(x), s.InputSize)
		}

		i := gate(s.Wi, s.Ui, s.Bi, x, h, sigmoid)
		f := gate(s.Wf, s.Uf, s.Bf, x, h, sigmoid)
		o := gate(s.Wo, s.Uo, s.Bo, x, h, sigmoid)
		g := gate(s.Wc, s.Uc, s.Bc, x, h, math.Tanh)

		for j := 0; j < s.HiddenSize; j++ {
			c[j] = f[j]*c[j] + i[j]*g[j]
			h[j] = o[j] * math.Tanh(c[j])
		}
	}

	return dot(s.DenseW, h) + s.DenseB, nil
}

// gate computes act(W·x + U·h + b) elementwise.
func gate(w, u [][]float64, b []float64, x, h []float64, act func(float64) float64) []float64 {
	out := make([]float64, len(b))
	for j := range out {
		out[j] = act(dot(w[j], x) + dot(u[j], h) + b[j])
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}
