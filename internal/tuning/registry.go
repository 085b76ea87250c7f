// Package tuning manages the empirically-tuned signal constants. The
// weights and floors are configuration, not derived values; they live in a
// separate YAML file that can be revised against historical data and
// hot-reloaded without restarting the engine.
package tuning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"alphapilot/internal/logger"
	"alphapilot/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Weights are the fixed-share contributions to base confidence. The floor
// is intentionally low: a 0.20 floor once made low-quality symbols appear
// investable, which is why 0.10 is the shipped default.
type Weights struct {
	BaseFloor  float64 `yaml:"base_floor" json:"base_floor"`
	Technical  float64 `yaml:"technical" json:"technical"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Volume     float64 `yaml:"volume" json:"volume"`
	Risk       float64 `yaml:"risk" json:"risk"`
}

// RegimeFloors are the per-regime admission floors for BUY-class actions.
type RegimeFloors struct {
	Technical float64 `yaml:"technical" json:"technical"`
	Sentiment float64 `yaml:"sentiment" json:"sentiment"`
}

// Snapshot is an immutable view of the tuning constants. The adjuster reads
// one snapshot per decision cycle.
type Snapshot struct {
	Version             int64
	LoadedAt            time.Time
	Weights             Weights
	Floors              map[types.Regime]RegimeFloors
	EscalationThreshold float64
}

// FloorsFor returns the floors for regime, falling back to the NEUTRAL row.
func (s Snapshot) FloorsFor(regime types.Regime) RegimeFloors {
	if f, ok := s.Floors[regime]; ok {
		return f
	}
	return s.Floors[types.RegimeNeutral]
}

type fileConfig struct {
	Weights             Weights                 `yaml:"weights" json:"weights"`
	Floors              map[string]RegimeFloors `yaml:"floors" json:"floors"`
	EscalationThreshold float64                 `yaml:"escalation_threshold" json:"escalation_threshold"`
}

// Registry loads the tuning file and watches it for changes.
type Registry struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry reads the tuning file at path and starts watching it. A file
// that fails schema validation on reload keeps the previous snapshot.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("tuning registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tuning config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("tuning reload failed, keeping previous snapshot: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Defaults returns a snapshot with the shipped constants, for tests and for
// running without a tuning file.
func Defaults() Snapshot {
	return Snapshot{
		Version:  1,
		LoadedAt: time.Now(),
		Weights: Weights{
			BaseFloor:  0.10,
			Technical:  0.40,
			Confidence: 0.30,
			Volume:     0.20,
			Risk:       0.10,
		},
		Floors: map[types.Regime]RegimeFloors{
			types.RegimeBearish: {Technical: 70, Sentiment: 0.15},
			types.RegimeNeutral: {Technical: 60, Sentiment: 0.05},
			types.RegimeBullish: {Technical: 55, Sentiment: -0.05},
		},
		EscalationThreshold: 0.80,
	}
}

// Snapshot returns the current tuning snapshot.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

func (r *Registry) reload() error {
	cfg, err := readTuningFile(r.path)
	if err != nil {
		return err
	}
	if err := validateAgainstSchema(cfg); err != nil {
		return err
	}
	snap := Defaults()
	snap.Weights = cfg.Weights
	snap.EscalationThreshold = cfg.EscalationThreshold
	floors := make(map[types.Regime]RegimeFloors, len(cfg.Floors))
	for name, f := range cfg.Floors {
		floors[types.Regime(strings.ToUpper(strings.TrimSpace(name)))] = f
	}
	if len(floors) > 0 {
		snap.Floors = floors
	}
	if err := checkInvariants(snap); err != nil {
		return err
	}

	r.mu.Lock()
	snap.Version = r.snapshot.Version + 1
	snap.LoadedAt = time.Now()
	r.snapshot = snap
	r.mu.Unlock()
	logger.Infof("tuning registry loaded %s (version=%d)", filepath.Base(r.path), snap.Version)
	return nil
}

// checkInvariants rejects tuning files that break the regime ordering: a
// bearish market must never be easier to buy into than a bullish one.
func checkInvariants(s Snapshot) error {
	bear := s.FloorsFor(types.RegimeBearish)
	neut := s.FloorsFor(types.RegimeNeutral)
	bull := s.FloorsFor(types.RegimeBullish)
	if !(bear.Technical >= neut.Technical && neut.Technical >= bull.Technical) {
		return fmt.Errorf("tuning: technical floors must be monotonic BEARISH >= NEUTRAL >= BULLISH")
	}
	if !(bear.Sentiment >= neut.Sentiment && neut.Sentiment >= bull.Sentiment) {
		return fmt.Errorf("tuning: sentiment floors must be monotonic BEARISH >= NEUTRAL >= BULLISH")
	}
	w := s.Weights
	sum := w.Technical + w.Confidence + w.Volume + w.Risk
	if sum <= 0.99 || sum >= 1.01 {
		return fmt.Errorf("tuning: weights must sum to 1.0, got %.3f", sum)
	}
	if s.EscalationThreshold <= 0 || s.EscalationThreshold > 1 {
		return fmt.Errorf("tuning: escalation_threshold must be in (0, 1]")
	}
	return nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	dst.Floors = make(map[types.Regime]RegimeFloors, len(src.Floors))
	for k, v := range src.Floors {
		dst.Floors[k] = v
	}
	return dst
}

func readTuningFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read tuning config failed: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse tuning config failed: %w", err)
	}
	return cfg, nil
}

const tuningSchema = `{
  "type": "object",
  "required": ["weights", "floors", "escalation_threshold"],
  "properties": {
    "weights": {
      "type": "object",
      "required": ["base_floor", "technical", "confidence", "volume", "risk"],
      "properties": {
        "base_floor": {"type": "number", "minimum": 0, "maximum": 0.5},
        "technical": {"type": "number", "minimum": 0, "maximum": 1},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "volume": {"type": "number", "minimum": 0, "maximum": 1},
        "risk": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "floors": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["technical", "sentiment"],
        "properties": {
          "technical": {"type": "number", "minimum": 0, "maximum": 100},
          "sentiment": {"type": "number", "minimum": -1, "maximum": 1}
        }
      }
    },
    "escalation_threshold": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var compiledTuningSchema = jsonschema.MustCompileString("tuning.json", tuningSchema)

func validateAgainstSchema(cfg fileConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := compiledTuningSchema.Validate(doc); err != nil {
		return fmt.Errorf("tuning schema validation failed: %w", err)
	}
	return nil
}
