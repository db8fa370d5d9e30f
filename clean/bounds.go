package clean

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bound is an inclusive plausibility range.
type Bound struct {
	Lo float64 `yaml:"lo"`
	Hi float64 `yaml:"hi"`
}

// Bounds maps a column to its plausibility range.
type Bounds map[string]Bound

// DefaultBounds returns the compiled-in plausibility ranges.
func DefaultBounds() Bounds {
	return Bounds{
		"combined_loan_to_value_ratio": {0, 200},
		"credit_score":                 {500, 820},
		"debt_to_income_ratio":         {0, 250},
		"income":                       {0, 1_000_000},
		"loan_amount":                  {0, 1_500_000},
	}
}

// LoadBounds reads bound overrides from a YAML file and merges them over
// the defaults. Columns not mentioned keep their default range.
func LoadBounds(path string) (Bounds, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bounds file: %w", err)
	}
	over := Bounds{}
	if err := yaml.Unmarshal(buf, &over); err != nil {
		return nil, fmt.Errorf("parsing bounds file %s: %w", path, err)
	}
	b := DefaultBounds()
	for k, v := range over {
		b[k] = v
	}
	return b, nil
}
