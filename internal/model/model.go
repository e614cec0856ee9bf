// Package model evaluates externally-trained models delivered as plain data.
//
// Two kinds are supported: a gradient-boosted tree ensemble and a minimal
// gated recurrent sequence model. Both are described by nested arrays in
// JSON and walked by a single evaluator per kind; no numerics library is
// involved because the weights arrive as data, not code. Training happens
// elsewhere; this package only scores.
package model

import (
	"encoding/json"
	"fmt"
)

// Model kinds.
const (
	KindTreeEnsemble = "tree_ensemble"
	KindSequence     = "sequence"
)

// Model is the tagged-variant container for a serialized model.
type Model struct {
	Kind     string         `json:"kind"`
	Version  string         `json:"version,omitempty"`
	Tree     *TreeEnsemble  `json:"tree_ensemble,omitempty"`
	Sequence *SequenceModel `json:"sequence,omitempty"`
}

// Features is the input vector shared by both model kinds. Named features
// feed the tree ensemble; Window feeds the sequence model, oldest step first.
type Features struct {
	Named  map[string]float64
	Window [][]float64
}

// Parse decodes a serialized model and validates its variant tag.
func Parse(raw []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	switch m.Kind {
	case KindTreeEnsemble:
		if m.Tree == nil {
			return nil, fmt.Errorf("model kind %s missing tree_ensemble payload", m.Kind)
		}
		if err := m.Tree.validate(); err != nil {
			return nil, err
		}
	case KindSequence:
		if m.Sequence == nil {
			return nil, fmt.Errorf("model kind %s missing sequence payload", m.Kind)
		}
		if err := m.Sequence.validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown model kind %q", m.Kind)
	}
	return &m, nil
}

// Predict scores features with the model. It is a pure function with no side
// effects; concurrent calls on the same model are safe.
func Predict(m *Model, f Features) (float64, error) {
	switch m.Kind {
	case KindTreeEnsemble:
		return EvaluateTree(m.Tree, f.Named), nil
	case KindSequence:
		return EvaluateSequence(m.Sequence, f.Window)
	default:
		return 0, fmt.Errorf("unknown model kind %q", m.Kind)
	}
}
