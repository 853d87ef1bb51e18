package cost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlRateTable is the on-disk shape for a pricing seed file: top-level
// keys are "<provider>/<model>", matching Registry's own key() format.
//
//	anthropic/claude-sonnet-4-5:
//	  prompt_rate: 0.003
//	  completion_rate: 0.015
type yamlRateTable map[string]struct {
	PromptRate     float64 `yaml:"prompt_rate"`
	CompletionRate float64 `yaml:"completion_rate"`
}

// LoadRatesFromYAML reads a pricing seed file per SPEC_FULL.md §4.9 and
// returns it in the shape NewRegistry expects. Grounded on
// 88lin-divinesense's ai/configloader/loader.go (os.ReadFile + yaml.Unmarshal).
func LoadRatesFromYAML(path string) (map[string]Rate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file %s: %w", path, err)
	}

	var table yamlRateTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("unmarshal pricing file %s: %w", path, err)
	}

	rates := make(map[string]Rate, len(table))
	for modelKey, r := range table {
		rates[modelKey] = Rate{PromptRate: r.PromptRate, CompletionRate: r.CompletionRate}
	}
	return rates, nil
}
