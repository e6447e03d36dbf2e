package experiment

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rate-sim/rate-sim/ratectl"
)

// Phase is a stretch of the run with fixed link conditions. It starts at the
// given transmission index and lasts until the next phase starts.
type Phase struct {
	Start                int     `yaml:"start"`
	SNR                  float64 `yaml:"snr_db"`
	BusyProbability      float64 `yaml:"busy_probability"`      // chance the channel is sensed busy before an attempt
	CollisionProbability float64 `yaml:"collision_probability"` // chance a busy, unprotected attempt collides
}

// StationSpec is one destination of the transmitter.
type StationSpec struct {
	Name      string  `yaml:"name"`
	SNROffset float64 `yaml:"snr_offset_db"` // added to the phase SNR
	Modes     int     `yaml:"modes"`         // lowest N OFDM modes supported; 0 means all
}

// Scenario describes the link conditions of a run.
type Scenario struct {
	Name      string        `yaml:"name"`
	FrameSize int           `yaml:"frame_size"` // data frame size in bytes
	Stations  []StationSpec `yaml:"stations"`
	Phases    []Phase       `yaml:"phases"`
}

// LoadScenario reads and validates a scenario YAML file.
// Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", path, err)
	}
	return &s, nil
}

// Validate checks that all fields in the scenario are valid.
func (s *Scenario) Validate() error {
	if s.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", s.FrameSize)
	}
	if len(s.Stations) == 0 {
		return fmt.Errorf("at least one station required")
	}
	maxModes := len(ratectl.DefaultOfdmModes())
	seen := make(map[string]bool, len(s.Stations))
	for i, st := range s.Stations {
		prefix := fmt.Sprintf("station[%d]", i)
		if st.Name == "" {
			return fmt.Errorf("%s: name must not be empty", prefix)
		}
		if seen[st.Name] {
			return fmt.Errorf("%s: duplicate name %q", prefix, st.Name)
		}
		seen[st.Name] = true
		if st.Modes < 0 || st.Modes > maxModes {
			return fmt.Errorf("%s: modes must be in [0, %d], got %d", prefix, maxModes, st.Modes)
		}
		if math.IsNaN(st.SNROffset) || math.IsInf(st.SNROffset, 0) {
			return fmt.Errorf("%s: snr_offset_db must be finite", prefix)
		}
	}
	if len(s.Phases) == 0 {
		return fmt.Errorf("at least one phase required")
	}
	for i, p := range s.Phases {
		prefix := fmt.Sprintf("phase[%d]", i)
		if i == 0 && p.Start != 0 {
			return fmt.Errorf("%s: first phase must start at 0, got %d", prefix, p.Start)
		}
		if i > 0 && p.Start <= s.Phases[i-1].Start {
			return fmt.Errorf("%s: start %d must be after the previous phase start %d", prefix, p.Start, s.Phases[i-1].Start)
		}
		if math.IsNaN(p.SNR) || math.IsInf(p.SNR, 0) {
			return fmt.Errorf("%s: snr_db must be finite", prefix)
		}
		if err := validateProbability(prefix+".busy_probability", p.BusyProbability); err != nil {
			return err
		}
		if err := validateProbability(prefix+".collision_probability", p.CollisionProbability); err != nil {
			return err
		}
	}
	return nil
}

func validateProbability(field string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%s must be in [0, 1], got %f", field, p)
	}
	return nil
}

// PhaseAt returns the phase in force at transmission index tx.
func (s *Scenario) PhaseAt(tx int) Phase {
	i := sort.Search(len(s.Phases), func(i int) bool { return s.Phases[i].Start > tx })
	if i == 0 {
		return s.Phases[0]
	}
	return s.Phases[i-1]
}

// StationModes returns the rate table of station i.
func (s *Scenario) StationModes(i int) []ratectl.Mode {
	modes := ratectl.DefaultOfdmModes()
	if n := s.Stations[i].Modes; n > 0 {
		return modes[:n]
	}
	return modes
}

// ValidPresets is the set of built-in scenario names.
var ValidPresets = map[string]bool{"static": true, "moving-star": true, "contention": true}

// PresetNames returns the built-in scenario names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(ValidPresets))
	for name := range ValidPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a fresh copy of a built-in scenario.
// Panics on an unknown name; callers validate against ValidPresets first.
func Preset(name string) *Scenario {
	switch name {
	case "static":
		return scenarioStatic()
	case "moving-star":
		return scenarioMovingStar()
	case "contention":
		return scenarioContention()
	default:
		panic(fmt.Sprintf("unknown scenario %q; valid: %s", name, strings.Join(PresetNames(), ", ")))
	}
}

// scenarioStatic is a single good link with light background traffic.
func scenarioStatic() *Scenario {
	return &Scenario{
		Name: "static", FrameSize: 1500,
		Stations: []StationSpec{{Name: "sta-0"}, {Name: "sta-1", SNROffset: -4}},
		Phases:   []Phase{{Start: 0, SNR: 20, BusyProbability: 0.05, CollisionProbability: 0.3}},
	}
}

// scenarioMovingStar moves a star of stations away from the access point and
// back, so the best rate shifts several times during the run.
func scenarioMovingStar() *Scenario {
	return &Scenario{
		Name: "moving-star", FrameSize: 1500,
		Stations: []StationSpec{
			{Name: "sta-0"},
			{Name: "sta-1", SNROffset: -3},
			{Name: "sta-2", SNROffset: -6, Modes: 6},
			{Name: "sta-3", SNROffset: 2},
		},
		Phases: []Phase{
			{Start: 0, SNR: 24, BusyProbability: 0.05, CollisionProbability: 0.2},
			{Start: 5000, SNR: 14, BusyProbability: 0.05, CollisionProbability: 0.2},
			{Start: 10000, SNR: 8, BusyProbability: 0.05, CollisionProbability: 0.2},
			{Start: 15000, SNR: 20, BusyProbability: 0.05, CollisionProbability: 0.2},
		},
	}
}

// scenarioContention keeps the SNR fixed and raises hidden-node contention in
// the middle of the run, where loss comes from collisions rather than the link.
func scenarioContention() *Scenario {
	return &Scenario{
		Name: "contention", FrameSize: 1500,
		Stations: []StationSpec{{Name: "sta-0"}, {Name: "sta-1", SNROffset: -2}, {Name: "sta-2", SNROffset: 1}},
		Phases: []Phase{
			{Start: 0, SNR: 22, BusyProbability: 0.05, CollisionProbability: 0.2},
			{Start: 6000, SNR: 22, BusyProbability: 0.6, CollisionProbability: 0.5},
			{Start: 12000, SNR: 22, BusyProbability: 0.1, CollisionProbability: 0.2},
		},
	}
}
