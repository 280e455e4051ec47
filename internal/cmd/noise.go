package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noysway/internal/noise"
)

// newSampler builds the field selected by --backend and --seed.
func newSampler() (noise.Sampler, error) {
	backend := viper.GetString("noise.backend")
	seed := viper.GetInt64("noise.seed")

	s, err := noise.NewSampler(backend, seed)
	if err != nil {
		return nil, fmt.Errorf("invalid noise settings: %w", err)
	}
	logger.Debug("Noise field ready", "backend", backend, "seed", seed)
	return s, nil
}
