package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModeProfile names one of the four pinned scoring profiles.
type ModeProfile string

const (
	MacroSurveillance  ModeProfile = "macro_surveillance"
	StealthBalanced    ModeProfile = "stealth_balanced"
	IntradayAggressive ModeProfile = "intraday_aggressive"
	Precision          ModeProfile = "precision"
)

// WeightsConfig is the YAML-loaded per-mode factor weight table.
type WeightsConfig struct {
	Regimes        map[string]map[string]float64 `yaml:"regimes"`
	MinConfluence  map[string]float64             `yaml:"min_confluence_score"`
	DefaultRegime  string                         `yaml:"default_regime"`
}

// weightTolerance is the allowed deviation from 1.0 for a mode's weight sum.
const weightTolerance = 1e-6

// LoadWeightsConfig reads and validates a weights YAML file. A profile whose
// weights do not sum to 1.0 (±1e-6) is an InvalidConfig, fatal at startup.
func LoadWeightsConfig(path string) (*WeightsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scoring: read weights config: %w", err)
	}
	var cfg WeightsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("scoring: parse weights config: %w", err)
	}
	if err := ValidateWeights(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateWeights rejects any mode profile whose weights don't sum to 1.0.
func ValidateWeights(cfg *WeightsConfig) error {
	for mode, weights := range cfg.Regimes {
		var sum float64
		for _, w := range weights {
			sum += w
		}
		if diff := sum - 1.0; diff > weightTolerance || diff < -weightTolerance {
			return fmt.Errorf("scoring: InvalidConfig: mode %q weights sum to %.9f, want 1.0 ±%.0e", mode, sum, weightTolerance)
		}
	}
	return nil
}

// WeightsFor returns the weight table for a mode, defaulting to the config's
// DefaultRegime if the mode is absent.
func (c *WeightsConfig) WeightsFor(mode ModeProfile) map[string]float64 {
	if w, ok := c.Regimes[string(mode)]; ok {
		return w
	}
	return c.Regimes[c.DefaultRegime]
}

// DefaultWeightsConfig is the built-in fallback used when no YAML file is
// available, falling back to the built-in default scoring weights.
func DefaultWeightsConfig() *WeightsConfig {
	even := 1.0 / float64(len(FactorOrder))
	w := make(map[string]float64, len(FactorOrder))
	for _, name := range FactorOrder {
		w[name] = even
	}
	// even division may not sum to exactly 1.0 under float rounding; patch the
	// last factor so the invariant holds exactly.
	var sum float64
	for _, name := range FactorOrder[:len(FactorOrder)-1] {
		sum += w[name]
	}
	w[FactorOrder[len(FactorOrder)-1]] = 1.0 - sum

	regimes := map[string]map[string]float64{}
	for _, m := range []ModeProfile{MacroSurveillance, StealthBalanced, IntradayAggressive, Precision} {
		regimes[string(m)] = w
	}
	return &WeightsConfig{
		Regimes:       regimes,
		MinConfluence: map[string]float64{"default": 65},
		DefaultRegime: string(StealthBalanced),
	}
}
