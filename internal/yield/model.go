package yield

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrMissingFeature = errors.New("missing feature")

const (
	KindLinear = "linear"
	KindForest = "forest"
)

// Model maps one county feature row to a yield in tonnes per hectare.
type Model interface {
	Predict(values map[string]float64) (float64, error)
}

// modelFile is the on-disk export of a trained regressor.
type modelFile struct {
	Crop         string             `json:"crop"`
	Kind         string             `json:"kind"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
	Trees        []tree             `json:"trees"`
}

type LinearModel struct {
	Intercept    float64
	Coefficients map[string]float64
}

func (m LinearModel) Predict(values map[string]float64) (float64, error) {
	out := m.Intercept
	for _, feature := range sortedKeys(m.Coefficients) {
		x, ok := values[feature]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingFeature, feature)
		}
		out += m.Coefficients[feature] * x
	}
	return out, nil
}

type node struct {
	Feature   string  `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value,omitempty"`
}

func (n node) leaf() bool { return n.Left < 0 && n.Right < 0 }

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t tree) eval(values map[string]float64) (float64, error) {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[i]
		if n.leaf() {
			return n.Value, nil
		}
		x, ok := values[n.Feature]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingFeature, n.Feature)
		}
		if x <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return 0, fmt.Errorf("tree walk did not reach a leaf")
}

func (t tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for idx, n := range t.Nodes {
		if n.leaf() {
			continue
		}
		if n.Feature == "" {
			return fmt.Errorf("node %d: split without feature", idx)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= idx || child >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d out of range", idx, child)
			}
		}
	}
	return nil
}

// ForestModel averages the output of its regression trees.
type ForestModel struct {
	trees []tree
}

func (m ForestModel) Predict(values map[string]float64) (float64, error) {
	var sum float64
	for _, t := range m.trees {
		v, err := t.eval(values)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(m.trees)), nil
}

// LoadModel reads one exported model file.
func LoadModel(path string) (string, Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read model: %w", err)
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return "", nil, fmt.Errorf("parse model %s: %w", path, err)
	}

	crop := strings.ToLower(strings.TrimSpace(mf.Crop))
	if crop == "" {
		crop = strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	switch mf.Kind {
	case KindLinear:
		if len(mf.Coefficients) == 0 {
			return "", nil, fmt.Errorf("model %s: linear model without coefficients", path)
		}
		return crop, LinearModel{Intercept: mf.Intercept, Coefficients: mf.Coefficients}, nil
	case KindForest:
		if len(mf.Trees) == 0 {
			return "", nil, fmt.Errorf("model %s: forest without trees", path)
		}
		for i, t := range mf.Trees {
			if err := t.validate(); err != nil {
				return "", nil, fmt.Errorf("model %s tree %d: %w", path, i, err)
			}
		}
		return crop, ForestModel{trees: mf.Trees}, nil
	default:
		return "", nil, fmt.Errorf("model %s: unknown kind %q", path, mf.Kind)
	}
}

// LoadModels loads every *.json model in dir, keyed by crop.
func LoadModels(dir string) (map[string]Model, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no model files in %s", dir)
	}
	models := make(map[string]Model, len(paths))
	for _, path := range paths {
		crop, model, err := LoadModel(path)
		if err != nil {
			return nil, err
		}
		if _, dup := models[crop]; dup {
			return nil, fmt.Errorf("duplicate model for crop %q in %s", crop, dir)
		}
		models[crop] = model
		log.Printf("yield model loaded crop=%s path=%s", crop, path)
	}
	return models, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
