package artifact

import (
	"math"
	"reflect"
	"testing"
)

func TestLinearModelPredict(t *testing.T) {
	m, err := NewLinearModel([]string{"a", "b"}, 10, []float64{2, -1})
	if err != nil {
		t.Fatalf("NewLinearModel: %v", err)
	}
	got, err := m.Predict([]float64{3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if got != 12 {
		t.Fatalf("Predict = %v, want 12", got)
	}
	if _, err := m.Predict([]float64{1}); err == nil {
		t.Fatal("expected length error")
	}
}

func TestLinearModelRejectsInvalid(t *testing.T) {
	if _, err := NewLinearModel(nil, 0, nil); err == nil {
		t.Error("expected error for no features")
	}
	if _, err := NewLinearModel([]string{"a"}, 0, []float64{1, 2}); err == nil {
		t.Error("expected error for length mismatch")
	}
	if _, err := NewLinearModel([]string{"a"}, 0, []float64{math.NaN()}); err == nil {
		t.Error("expected error for NaN coefficient")
	}
}

func TestDecodeLinearModel(t *testing.T) {
	doc := `{"kind":"linear","version":1,"feature_names":["x","y"],"intercept":1.5,"coefficients":[1,2]}`
	m, err := DecodeModel([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeModel: %v", err)
	}
	if !reflect.DeepEqual(m.FeatureNames(), []string{"x", "y"}) {
		t.Fatalf("FeatureNames = %v", m.FeatureNames())
	}
	got, _ := m.Predict([]float64{1, 1})
	if got != 4.5 {
		t.Fatalf("Predict = %v, want 4.5", got)
	}
}

func TestDecodeModelUnknownKind(t *testing.T) {
	if _, err := DecodeModel([]byte(`{"kind":"random_forest","version":1}`)); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if _, err := DecodeModel([]byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected decode error")
	}
}

// Two stumps over features f0 and f1. Tree 0 splits f0 < 2 (missing goes
// left), tree 1 splits f1 < 0.5 (missing goes right).
const xgbModelJSON = `{
  "learner": {
    "feature_names": ["f0", "f1"],
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "tree_info": [0, 0],
        "trees": [
          {
            "left_children": [1, -1, -1],
            "right_children": [2, -1, -1],
            "split_indices": [0, 0, 0],
            "split_conditions": [2.0, 10.0, 20.0],
            "default_left": [1, 0, 0]
          },
          {
            "left_children": [1, -1, -1],
            "right_children": [2, -1, -1],
            "split_indices": [1, 0, 0],
            "split_conditions": [0.5, -1.0, 1.0],
            "default_left": [false, false, false]
          }
        ]
      }
    },
    "learner_model_param": {"base_score": "[5E-1]", "num_feature": "2", "num_target": "1"},
    "objective": {"name": "reg:squarederror"}
  },
  "version": [2, 0, 3]
}`

func TestXGBoostPredict(t *testing.T) {
	m, err := DecodeModel([]byte(xgbModelJSON))
	if err != nil {
		t.Fatalf("DecodeModel: %v", err)
	}
	xm, ok := m.(*XGBoostModel)
	if !ok {
		t.Fatalf("expected *XGBoostModel, got %T", m)
	}
	if xm.Trees() != 2 {
		t.Fatalf("Trees = %d", xm.Trees())
	}
	tests := []struct {
		row  []float64
		want float64
	}{
		{[]float64{1, 0}, 0.5 + 10 - 1},
		{[]float64{3, 0}, 0.5 + 20 - 1},
		{[]float64{3, 1}, 0.5 + 20 + 1},
		{[]float64{math.NaN(), math.NaN()}, 0.5 + 10 + 1},
	}
	for _, tt := range tests {
		got, err := m.Predict(tt.row)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Predict(%v) = %v, want %v", tt.row, got, tt.want)
		}
	}
	if _, err := m.Predict([]float64{1}); err == nil {
		t.Fatal("expected length error")
	}
}

func TestXGBoostWrapped(t *testing.T) {
	doc := `{"kind":"xgboost","version":1,"model":` + xgbModelJSON + `}`
	m, err := DecodeModel([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeModel: %v", err)
	}
	if got := m.FeatureNames(); !reflect.DeepEqual(got, []string{"f0", "f1"}) {
		t.Fatalf("FeatureNames = %v", got)
	}
}

func TestXGBoostLogLink(t *testing.T) {
	doc := `{"learner":{"feature_names":["f0"],
	  "gradient_booster":{"name":"gbtree","model":{"trees":[
	    {"left_children":[-1],"right_children":[-1],"split_indices":[0],"split_conditions":[0.0],"default_left":[0]}]}},
	  "learner_model_param":{"base_score":"1"},
	  "objective":{"name":"reg:gamma"}}}`
	m, err := DecodeXGBoost([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeXGBoost: %v", err)
	}
	got, _ := m.Predict([]float64{42})
	if got != 1 {
		t.Fatalf("Predict = %v, want exp(log(1)+0) = 1", got)
	}
}

func TestXGBoostRejectsInvalid(t *testing.T) {
	docs := map[string]string{
		"dart booster": `{"learner":{"feature_names":["f0"],"gradient_booster":{"name":"dart"},"objective":{"name":"reg:squarederror"}}}`,
		"classifier":   `{"learner":{"feature_names":["f0"],"gradient_booster":{"name":"gbtree"},"objective":{"name":"binary:logistic"}}}`,
		"no features":  `{"learner":{"gradient_booster":{"name":"gbtree"},"objective":{"name":"reg:squarederror"}}}`,
		"no trees": `{"learner":{"feature_names":["f0"],"gradient_booster":{"name":"gbtree","model":{"trees":[]}},
			"objective":{"name":"reg:squarederror"}}}`,
		"cycle": `{"learner":{"feature_names":["f0"],"gradient_booster":{"name":"gbtree","model":{"trees":[
			{"left_children":[0],"right_children":[0],"split_indices":[0],"split_conditions":[1],"default_left":[0]}]}},
			"objective":{"name":"reg:squarederror"}}}`,
		"feature range": `{"learner":{"feature_names":["f0"],"gradient_booster":{"name":"gbtree","model":{"trees":[
			{"left_children":[1,-1,-1],"right_children":[2,-1,-1],"split_indices":[5,0,0],"split_conditions":[1,0,0],"default_left":[0,0,0]}]}},
			"objective":{"name":"reg:squarederror"}}}`,
		"multi target": `{"learner":{"feature_names":["f0"],"gradient_booster":{"name":"gbtree"},
			"learner_model_param":{"num_target":"2"},"objective":{"name":"reg:squarederror"}}}`,
	}
	for name, d := range docs {
		if _, err := DecodeXGBoost([]byte(d)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseBaseScore(t *testing.T) {
	tests := map[string]float64{"5E-1": 0.5, "[2.5E1]": 25, "": 0.5}
	for in, want := range tests {
		got, err := parseBaseScore(in)
		if err != nil || got != want {
			t.Errorf("parseBaseScore(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseBaseScore("abc"); err == nil {
		t.Error("expected error")
	}
}

func TestXGBoostSplitUsesFloat32(t *testing.T) {
	doc := `{"learner":{"feature_names":["FuelConsumption"],
	  "gradient_booster":{"name":"gbtree","model":{"trees":[
	    {"left_children":[1,-1,-1],"right_children":[2,-1,-1],"split_indices":[0,0,0],
	     "split_conditions":[7.1E0,1E2,2E2],"default_left":[0,0,0]}]}},
	  "learner_model_param":{"base_score":"0"},
	  "objective":{"name":"reg:squarederror"}}}`
	m, err := DecodeXGBoost([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeXGBoost: %v", err)
	}
	tests := []struct {
		x    float64
		want float64
	}{
		{7.0, 100},
		{7.09999999, 200}, // rounds to 7.1 in float32
		{7.1, 200},
		{7.2, 200},
	}
	for _, tt := range tests {
		got, err := m.Predict([]float64{tt.x})
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Predict(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestXGBoostSumsLeavesInFloat32(t *testing.T) {
	doc := `{"learner":{"feature_names":["f0"],
	  "gradient_booster":{"name":"gbtree","model":{"trees":[
	    {"left_children":[-1],"right_children":[-1],"split_indices":[0],"split_conditions":[0.1],"default_left":[0]},
	    {"left_children":[-1],"right_children":[-1],"split_indices":[0],"split_conditions":[0.2],"default_left":[0]}]}},
	  "learner_model_param":{"base_score":"0"},
	  "objective":{"name":"reg:squarederror"}}}`
	m, err := DecodeXGBoost([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeXGBoost: %v", err)
	}
	a, b := float32(0.1), float32(0.2)
	want := float64(a + b)
	got, _ := m.Predict([]float64{1})
	if got != want {
		t.Fatalf("Predict = %v, want %v", got, want)
	}
}
