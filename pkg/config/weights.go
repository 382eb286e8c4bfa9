package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/decoylabs/scamtrap/pkg/signal"
)

// weightsFile is the on-disk YAML shape for weight overrides:
//
//	weights:
//	  otp_request: 0.60
//	  urgency: 0.20
type weightsFile struct {
	Weights map[string]float64 `yaml:"weights"`
}

// LoadWeights returns the signal weight table for this deployment. Overrides
// from the configured YAML file (if any) are applied onto the defaults and
// the result is handed out once; callers treat it as immutable.
func (c *Config) LoadWeights() (signal.WeightTable, error) {
	table := signal.DefaultWeights()
	if c.WeightsFile == "" {
		return table, nil
	}

	raw, err := os.ReadFile(c.WeightsFile)
	if err != nil {
		return nil, fmt.Errorf("reading weights file %s: %w", c.WeightsFile, err)
	}

	var wf weightsFile
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("parsing weights file %s: %w", c.WeightsFile, err)
	}

	table = table.Clone()
	for id, w := range wf.Weights {
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("weights file %s: %s=%v out of range [0,1]", c.WeightsFile, id, w)
		}
		t := signal.Type(id)
		if _, known := table[t]; !known {
			return nil, fmt.Errorf("weights file %s: unknown signal id %q", c.WeightsFile, id)
		}
		table[t] = w
	}
	return table, nil
}
