package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// XGBoostModel evaluates a gradient boosted tree ensemble saved with
// XGBoost's native JSON format (Booster.save_model("model.json")).
// Features, thresholds and margins are float32, as in XGBoost's own
// predictor, so rows on a split boundary take the same branch.
type XGBoostModel struct {
	baseMargin float32
	link       func(float64) float64
	trees      []xgbTree
	features   []string
}

type xgbTree struct {
	left, right []int
	splitIndex  []int
	splitCond   []float32
	defaultLeft []bool
}

// xgbObjectives maps supported objectives to whether they use the identity
// link. The others use a log link.
var xgbObjectives = map[string]bool{
	"reg:squarederror":     true,
	"reg:linear":           true,
	"reg:squaredlogerror":  true,
	"reg:pseudohubererror": true,
	"reg:absoluteerror":    true,
	"reg:quantileerror":    true,
	"count:poisson":        false,
	"reg:gamma":            false,
	"reg:tweedie":          false,
}

type xgbDoc struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees    []xgbTreeDoc `json:"trees"`
				TreeInfo []int        `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
			NumTarget  string `json:"num_target"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbTreeDoc struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float32  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
}

// flexBool accepts 0/1 as well as true/false; XGBoost versions differ.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "1", "true":
		*b = true
	case "0", "false":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// DecodeXGBoost parses a native XGBoost JSON model.
func DecodeXGBoost(data []byte) (*XGBoostModel, error) {
	var doc xgbDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode xgboost: %w", err)
	}
	l := doc.Learner
	if l.GradientBooster.Name != "gbtree" {
		return nil, fmt.Errorf("xgboost: unsupported booster %q", l.GradientBooster.Name)
	}
	identity, ok := xgbObjectives[l.Objective.Name]
	if !ok {
		return nil, fmt.Errorf("xgboost: unsupported objective %q", l.Objective.Name)
	}
	if nt := l.LearnerModelParam.NumTarget; nt != "" && nt != "1" {
		return nil, fmt.Errorf("xgboost: %s targets, want 1", nt)
	}
	if len(l.FeatureNames) == 0 {
		return nil, fmt.Errorf("xgboost: model has no feature names")
	}
	base, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	m := &XGBoostModel{
		baseMargin: float32(base),
		link:       func(x float64) float64 { return x },
		features:   append([]string(nil), l.FeatureNames...),
	}
	if !identity {
		if base <= 0 {
			return nil, fmt.Errorf("xgboost: base_score %v invalid for log link", base)
		}
		m.baseMargin = float32(math.Log(base))
		m.link = math.Exp
	}
	for i, td := range l.GradientBooster.Model.Trees {
		t, err := buildTree(td, len(m.features))
		if err != nil {
			return nil, fmt.Errorf("xgboost: tree %d: %w", i, err)
		}
		m.trees = append(m.trees, t)
	}
	if len(m.trees) == 0 {
		return nil, fmt.Errorf("xgboost: no trees")
	}
	return m, nil
}

// parseBaseScore handles both "5E-1" and the bracketed "[5E-1]" written by
// newer releases.
func parseBaseScore(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("xgboost: base_score %q: %w", s, err)
	}
	return v, nil
}

func buildTree(td xgbTreeDoc, numFeatures int) (xgbTree, error) {
	n := len(td.LeftChildren)
	if n == 0 {
		return xgbTree{}, fmt.Errorf("empty tree")
	}
	if len(td.RightChildren) != n || len(td.SplitIndices) != n || len(td.SplitConditions) != n {
		return xgbTree{}, fmt.Errorf("node arrays differ in length")
	}
	t := xgbTree{
		left:        td.LeftChildren,
		right:       td.RightChildren,
		splitIndex:  td.SplitIndices,
		splitCond:   td.SplitConditions,
		defaultLeft: make([]bool, n),
	}
	for i := range td.DefaultLeft {
		if i < n {
			t.defaultLeft[i] = bool(td.DefaultLeft[i])
		}
	}
	for i := 0; i < n; i++ {
		l, r := t.left[i], t.right[i]
		if l == -1 {
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return xgbTree{}, fmt.Errorf("node %d: bad children %d/%d", i, l, r)
		}
		if t.splitIndex[i] < 0 || t.splitIndex[i] >= numFeatures {
			return xgbTree{}, fmt.Errorf("node %d: split feature %d out of range", i, t.splitIndex[i])
		}
	}
	return t, nil
}

// leaf walks from the root to a leaf. Children always have larger indices
// than their parent, so the walk terminates.
func (t xgbTree) leaf(row []float64) float32 {
	i := 0
	for t.left[i] != -1 {
		x := float32(row[t.splitIndex[i]])
		switch {
		case math.IsNaN(float64(x)):
			if t.defaultLeft[i] {
				i = t.left[i]
			} else {
				i = t.right[i]
			}
		case x < t.splitCond[i]:
			i = t.left[i]
		default:
			i = t.right[i]
		}
	}
	return t.splitCond[i]
}

// FeatureNames returns the trained column order.
func (m *XGBoostModel) FeatureNames() []string { return append([]string(nil), m.features...) }

// Trees returns the number of trees in the ensemble.
func (m *XGBoostModel) Trees() int { return len(m.trees) }

// Predict sums the leaf values of every tree on top of the base margin.
func (m *XGBoostModel) Predict(row []float64) (float64, error) {
	if len(row) != len(m.features) {
		return 0, fmt.Errorf("xgboost: row has %d values, want %d", len(row), len(m.features))
	}
	margin := m.baseMargin
	for _, t := range m.trees {
		margin += t.leaf(row)
	}
	return m.link(float64(margin)), nil
}
