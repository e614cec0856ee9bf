package model

import "fmt"

// TreeNode is one node of a boosted tree. Leaf nodes carry Leaf; split nodes
// carry a feature reference (by name, or by index into the ensemble feature
// list) and a threshold.
type TreeNode struct {
	Feature      string    `json:"feature,omitempty"`
	FeatureIndex *int      `json:"feature_index,omitempty"`
	Threshold    float64   `json:"threshold,omitempty"`
	Left         *TreeNode `json:"left,omitempty"`
	Right        *TreeNode `json:"right,omitempty"`
	Leaf         *float64  `json:"leaf,omitempty"`
}

// TreeEnsemble is a boosted ensemble: the prediction is the base score plus
// the sum of every tree's selected leaf.
type TreeEnsemble struct {
	BaseScore float64     `json:"base_score"`
	Features  []string    `json:"features,omitempty"`
	Trees     []*TreeNode `json:"trees"`
}

// validate checks every tree is structurally sound before evaluation: each
// node is either a leaf or a split with both children and a feature
// reference. Exported payloads are external input; a truncated tree must
// surface as a parse error, never a panic in walk.
func (e *TreeEnsemble) validate() error {
	for i, root := range e.Trees {
		if err := validateNode(root); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func validateNode(node *TreeNode) error {
	if node == nil {
		return fmt.Errorf("node is null")
	}
	if node.Leaf != nil {
		return nil
	}
	if node.Feature == "" && node.FeatureIndex == nil {
		return fmt.Errorf("split node has no feature reference")
	}
	if node.Left == nil || node.Right == nil {
		return fmt.Errorf("split node missing a child")
	}
	if err := validateNode(node.Left); err != nil {
		return err
	}
	return validateNode(node.Right)
}

// EvaluateTree walks every tree node-by-node and sums leaf values with the
// base score. Features missing from the input follow the left child, the
// usual missing-value default for exported boosters.
func EvaluateTree(ens *TreeEnsemble, features map[string]float64) float64 {
	sum := ens.BaseScore
	for _, root := range ens.Trees {
		sum += walk(ens, root, features)
	}
	return sum
}

func walk(ens *TreeEnsemble, node *TreeNode, features map[string]float64) float64 {
	for node.Leaf == nil {
		value, ok := resolveFeature(ens, node, features)
		if !ok || value < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return *node.Leaf
}

func resolveFeature(ens *TreeEnsemble, node *TreeNode, features map[string]float64) (float64, bool) {
	name := node.Feature
	if name == "" && node.FeatureIndex != nil {
		idx := *node.FeatureIndex
		if idx < 0 || idx >= len(ens.Features) {
			return 0, false
		}
		name = ens.Features[idx]
	}
	v, ok := features[name]
	return v, ok
}
