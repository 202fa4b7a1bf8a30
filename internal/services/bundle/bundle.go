// Package bundle decodes trained model artifacts and caches them by path.
package bundle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/domain/service"
	"EnviroPulse/internal/services/features"
)

var requiredAttrs = []string{"target", "feature_cols", "model", "hmax_min", "cadence_min"}

// Bundle is a trained model together with its feature contract.
type Bundle struct {
	ID          string
	Path        string
	Version     string
	Target      string
	FeatureCols []string
	Model       service.Regressor
	HmaxMin     int
	CadenceMin  int
	Schema      features.Schema
	LoadedAt    time.Time
}

// Info returns the public description of b.
func (b *Bundle) Info() models.BundleInfo {
	return models.BundleInfo{
		ID:          b.ID,
		Path:        b.Path,
		Version:     b.Version,
		Target:      b.Target,
		FeatureCols: append([]string(nil), b.FeatureCols...),
		HmaxMin:     b.HmaxMin,
		CadenceMin:  b.CadenceMin,
		ModelKind:   b.Model.Kind(),
		LoadedAt:    b.LoadedAt,
	}
}

type artifact struct {
	Version        string          `json:"version"`
	Target         string          `json:"target"`
	FeatureCols    []string        `json:"feature_cols"`
	HmaxMin        int             `json:"hmax_min"`
	CadenceMin     int             `json:"cadence_min"`
	LagsMin        []int           `json:"lags_min"`
	RollWindowsMin []int           `json:"roll_windows_min"`
	Model          json.RawMessage `json:"model"`
}

// Decode parses a serialized bundle read from path.
func Decode(path string, data []byte) (*Bundle, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, malformed(path, "not a JSON object").WithError(err)
	}
	for _, attr := range requiredAttrs {
		raw, ok := fields[attr]
		if !ok || string(raw) == "null" {
			return nil, malformed(path, fmt.Sprintf("missing '%s'", attr))
		}
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, malformed(path, "invalid attribute").WithError(err)
	}
	if !models.HasColumn(a.Target) {
		return nil, malformed(path, fmt.Sprintf("unknown target %q", a.Target))
	}
	if len(a.FeatureCols) == 0 {
		return nil, malformed(path, "empty 'feature_cols'")
	}
	if a.HmaxMin < 1 {
		return nil, malformed(path, fmt.Sprintf("'hmax_min' must be >= 1, got %d", a.HmaxMin))
	}

	schema := features.NewSchema(a.Target, a.CadenceMin, a.LagsMin, a.RollWindowsMin)
	if err := schema.Validate(); err != nil {
		return nil, malformed(path, "invalid feature schema").WithError(err)
	}
	if unknown := schema.Unknown(a.FeatureCols); len(unknown) > 0 {
		return nil, malformed(path, fmt.Sprintf("feature_cols not producible: %v", unknown))
	}

	model, err := decodeModel(a.Model, len(a.FeatureCols))
	if err != nil {
		return nil, malformed(path, "invalid 'model'").WithError(err)
	}

	return &Bundle{
		ID:          filepath.Base(path),
		Path:        path,
		Version:     a.Version,
		Target:      a.Target,
		FeatureCols: a.FeatureCols,
		Model:       model,
		HmaxMin:     a.HmaxMin,
		CadenceMin:  a.CadenceMin,
		Schema:      schema,
	}, nil
}

func malformed(path, what string) *models.ForecastError {
	return models.NewForecastError(models.KindMalformedBundle, fmt.Sprintf("bundle at '%s' %s", path, what))
}

func decodeModel(raw json.RawMessage, nFeatures int) (service.Regressor, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Kind {
	case KindLinear:
		return decodeLinear(raw, nFeatures)
	case KindMLP:
		return decodeMLP(raw, nFeatures)
	case KindTreeEnsemble:
		return decodeTrees(raw, nFeatures)
	case "":
		return nil, fmt.Errorf("model kind is empty")
	default:
		return nil, fmt.Errorf("unsupported model kind %q", head.Kind)
	}
}
