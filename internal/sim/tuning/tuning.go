package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	GridWidth  int `yaml:"grid_width" json:"grid_width" env:"CHRONOGRID_GRID_WIDTH"`
	GridHeight int `yaml:"grid_height" json:"grid_height" env:"CHRONOGRID_GRID_HEIGHT"`

	// Cells hold 0..MaxCellValue. A cell reaching CascadeThreshold spills into its neighbors.
	MaxCellValue     int `yaml:"max_cell_value" json:"max_cell_value" env:"CHRONOGRID_MAX_CELL_VALUE"`
	CascadeThreshold int `yaml:"cascade_threshold" json:"cascade_threshold" env:"CHRONOGRID_CASCADE_THRESHOLD"`

	PropagationDelayMs int `yaml:"propagation_delay_ms" json:"propagation_delay_ms" env:"CHRONOGRID_PROPAGATION_DELAY_MS"`
	ReverseFeedbackMs  int `yaml:"reverse_feedback_ms" json:"reverse_feedback_ms" env:"CHRONOGRID_REVERSE_FEEDBACK_MS"`
	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz" env:"CHRONOGRID_TICK_RATE_HZ"`

	EnforceStepBudget bool `yaml:"enforce_step_budget" json:"enforce_step_budget" env:"CHRONOGRID_ENFORCE_STEP_BUDGET"`
}

const maxGridSide = 32

func Defaults() Tuning {
	return Tuning{
		GridWidth:          8,
		GridHeight:         8,
		MaxCellValue:       3,
		CascadeThreshold:   3,
		PropagationDelayMs: 200,
		ReverseFeedbackMs:  300,
		TickRateHz:         30,
	}
}

// Load reads tuning.yaml over Defaults. An empty path yields Defaults.
// Environment overrides are applied by LoadWithEnv.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// LoadWithEnv is Load followed by CHRONOGRID_* environment overrides.
func LoadWithEnv(path string) (Tuning, error) {
	t, err := Load(path)
	if err != nil {
		return t, err
	}
	if err := env.Parse(&t); err != nil {
		return t, fmt.Errorf("tuning env: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning env: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.GridWidth <= 0 || t.GridWidth > maxGridSide || t.GridHeight <= 0 || t.GridHeight > maxGridSide {
		return fmt.Errorf("grid %dx%d out of range (1..%d)", t.GridWidth, t.GridHeight, maxGridSide)
	}
	if t.MaxCellValue <= 0 || t.MaxCellValue > 255 {
		return fmt.Errorf("max_cell_value %d out of range (1..255)", t.MaxCellValue)
	}
	if t.CascadeThreshold <= 0 || t.CascadeThreshold > t.MaxCellValue {
		return fmt.Errorf("cascade_threshold %d out of range (1..%d)", t.CascadeThreshold, t.MaxCellValue)
	}
	if t.PropagationDelayMs < 0 || t.ReverseFeedbackMs < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if t.TickRateHz <= 0 || t.TickRateHz > 240 {
		return fmt.Errorf("tick_rate_hz %d out of range (1..240)", t.TickRateHz)
	}
	return nil
}

func (t Tuning) PropagationDelay() time.Duration {
	return time.Duration(t.PropagationDelayMs) * time.Millisecond
}

func (t Tuning) ReverseFeedback() time.Duration {
	return time.Duration(t.ReverseFeedbackMs) * time.Millisecond
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}
