package pricing

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sdpower/ccdash/internal/types"
)

//go:embed default_pricing.yaml
var defaultPricingYAML []byte

type rateSpec struct {
	Input      float64 `yaml:"input" toml:"input" json:"input"`
	Output     float64 `yaml:"output" toml:"output" json:"output"`
	CacheWrite float64 `yaml:"cache_write" toml:"cache_write" json:"cache_write"`
	CacheRead  float64 `yaml:"cache_read" toml:"cache_read" json:"cache_read"`
}

func (s rateSpec) rates() Rates {
	return Rates{
		Input:      decimal.NewFromFloat(s.Input),
		Output:     decimal.NewFromFloat(s.Output),
		CacheWrite: decimal.NewFromFloat(s.CacheWrite),
		CacheRead:  decimal.NewFromFloat(s.CacheRead),
	}
}

type tableFile struct {
	Models   map[string]rateSpec `yaml:"models" toml:"models" json:"models"`
	Fallback *rateSpec           `yaml:"fallback" toml:"fallback" json:"fallback"`
}

func (f tableFile) table() (*Table, error) {
	rates := make(map[string]Rates, len(f.Models))
	for model, spec := range f.Models {
		r := spec.rates()
		if r.hasNegative() {
			return nil, fmt.Errorf("%w: negative rate for model %q", types.ErrInvalidFormat, model)
		}
		rates[model] = r
	}
	var fallback Rates
	if f.Fallback != nil {
		fallback = f.Fallback.rates()
		if fallback.hasNegative() {
			return nil, fmt.Errorf("%w: negative fallback rate", types.ErrInvalidFormat)
		}
	} else {
		fallback = Rates{}
	}
	t := NewTable(rates, fallback)
	t.fallbackSet = f.Fallback != nil
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in table. Unknown models fall back to zero rates.
func Default() *Table {
	defaultOnce.Do(func() {
		var f tableFile
		if err := yaml.Unmarshal(defaultPricingYAML, &f); err != nil {
			panic("default_pricing.yaml: " + err.Error())
		}
		t, err := f.table()
		if err != nil {
			panic("default_pricing.yaml: " + err.Error())
		}
		defaultTable = t
	})
	return defaultTable
}

// LoadFile reads a pricing table from YAML, TOML or JSON, chosen by
// extension, and lays it over the defaults.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}

	var f tableFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("%w: unsupported pricing file extension %q", types.ErrInvalidFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidFormat, path, err)
	}

	t, err := f.table()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Default().Merge(t), nil
}
