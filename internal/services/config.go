package services

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// WaveScheduleConfig is the matching policy: how far each wave searches, how
// long to wait between waves, and when an unanswered request expires. It is
// pure data; the orchestrator never hard-codes any of these numbers.
type WaveScheduleConfig struct {
	RadiusIncrementsMeters []float64
	WaveDelay              time.Duration
	MaxWaves               int
	MinProvidersPerWave    int
	RequestExpiry          time.Duration
}

// DefaultWaveSchedule is the production ladder: 5/10/15/25/40 km, a new wave
// every 10 minutes, requests expire after 24 hours.
func DefaultWaveSchedule() WaveScheduleConfig {
	return WaveScheduleConfig{
		RadiusIncrementsMeters: []float64{5000, 10000, 15000, 25000, 40000},
		WaveDelay:              10 * time.Minute,
		MaxWaves:               5,
		MinProvidersPerWave:    1,
		RequestExpiry:          24 * time.Hour,
	}
}

// WaveScheduleFromEnv reads overrides from the environment, falling back to
// the defaults for anything unset or unparseable. MaxWaves is clamped to the
// radius ladder length.
func WaveScheduleFromEnv() WaveScheduleConfig {
	cfg := DefaultWaveSchedule()

	if raw := os.Getenv("WAVE_RADII_KM"); raw != "" {
		var radii []float64
		for _, part := range strings.Split(raw, ",") {
			km, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil || km <= 0 {
				radii = nil
				break
			}
			radii = append(radii, km*1000)
		}
		if len(radii) > 0 {
			cfg.RadiusIncrementsMeters = radii
			cfg.MaxWaves = len(radii)
		}
	}
	if minutes := envInt("WAVE_DELAY_MINUTES"); minutes > 0 {
		cfg.WaveDelay = time.Duration(minutes) * time.Minute
	}
	if n := envInt("MAX_WAVES"); n > 0 {
		cfg.MaxWaves = n
	}
	if n := envInt("MIN_PROVIDERS_PER_WAVE"); n > 0 {
		cfg.MinProvidersPerWave = n
	}
	if hours := envInt("REQUEST_EXPIRY_HOURS"); hours > 0 {
		cfg.RequestExpiry = time.Duration(hours) * time.Hour
	}

	if cfg.MaxWaves > len(cfg.RadiusIncrementsMeters) {
		cfg.MaxWaves = len(cfg.RadiusIncrementsMeters)
	}
	return cfg
}

// RadiusForWave returns the search radius for the given 0-indexed wave.
func (c WaveScheduleConfig) RadiusForWave(wave int) float64 {
	if wave < 0 {
		wave = 0
	}
	if wave >= len(c.RadiusIncrementsMeters) {
		return c.RadiusIncrementsMeters[len(c.RadiusIncrementsMeters)-1]
	}
	return c.RadiusIncrementsMeters[wave]
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
