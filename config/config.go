package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Southclaws/fault"

	"github.com/Lytrix/MidiLooper-sub000/control"
)

const (
	defaultBaudRate = 115200
	defaultBPM      = 120
)

// Binding maps one hardware control to a looper action. Control names
// follow the fader box wire protocol: "fader.N", "btn.N" and
// "encoder.N". Motor is the motorized fader number for drag bindings,
// -1 for everything else; Param parameterizes actions such as the
// track number on a track select button.
type Binding struct {
	Control string `json:"control"`
	Action  string `json:"action"`
	Motor   int    `json:"motor"`
	Param   int    `json:"param,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	InputPort  string    `json:"inputPort,omitempty"`
	OutputPort string    `json:"outputPort,omitempty"`
	SerialPort string    `json:"serialPort,omitempty"`
	BaudRate   int       `json:"baudRate,omitempty"`
	Channel    uint8     `json:"channel"`
	BPM        float64   `json:"bpm,omitempty"`
	Quantize   bool      `json:"quantize"`
	ProjectDir string    `json:"projectDir,omitempty"`
	Bindings   []Binding `json:"bindings,omitempty"`
}

// DefaultConfig returns a config with sensible defaults: empty port
// names pick the first port found, the binding table matches the
// reference fader box layout.
func DefaultConfig() *Config {
	return &Config{
		BaudRate: defaultBaudRate,
		BPM:      defaultBPM,
		Quantize: true,
		Bindings: []Binding{
			{Control: "btn.0", Action: string(control.ActRecord), Motor: -1},
			{Control: "btn.1", Action: string(control.ActPlay), Motor: -1},
			{Control: "btn.2", Action: string(control.ActStop), Motor: -1},
			{Control: "btn.3", Action: string(control.ActUndo), Motor: -1},
			{Control: "btn.4", Action: string(control.ActRedo), Motor: -1},
			{Control: "btn.5", Action: string(control.ActMute), Motor: -1},
			{Control: "btn.6", Action: string(control.ActEditSelect), Motor: -1},
			{Control: "btn.7", Action: string(control.ActEditExit), Motor: -1},
			{Control: "btn.8", Action: string(control.ActConfirm), Motor: -1},
			{Control: "btn.9", Action: string(control.ActNoteNext), Motor: -1},
			{Control: "btn.10", Action: string(control.ActNotePrev), Motor: -1},
			{Control: "btn.11", Action: string(control.ActClear), Motor: -1},
			{Control: "btn.12", Action: string(control.ActQuantize), Motor: -1},
			{Control: "btn.16", Action: string(control.ActTrack), Motor: -1, Param: 0},
			{Control: "btn.17", Action: string(control.ActTrack), Motor: -1, Param: 1},
			{Control: "btn.18", Action: string(control.ActTrack), Motor: -1, Param: 2},
			{Control: "btn.19", Action: string(control.ActTrack), Motor: -1, Param: 3},
			{Control: "encoder.0", Action: string(control.ActBracket), Motor: -1},
			{Control: "encoder.1", Action: string(control.ActLoopStart), Motor: -1},
			{Control: "encoder.2", Action: string(control.ActBPM), Motor: -1},
			{Control: "fader.0", Action: string(control.ActDragStart), Motor: 0},
			{Control: "fader.1", Action: string(control.ActDragLength), Motor: 1},
			{Control: "fader.2", Action: string(control.ActDragPitch), Motor: 2},
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midilooper"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultProjectDir is where sessions land when the config names none.
func DefaultProjectDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "projects"), nil
}

// Load reads the config from path, or from the default location when
// path is empty. A missing file yields the defaults; a present file
// with an unknown action in its binding table is an error, so a typo
// fails at startup instead of becoming a dead button.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills omitted scalars and validates the binding table.
func (c *Config) normalize() error {
	if c.BaudRate == 0 {
		c.BaudRate = defaultBaudRate
	}
	if c.BPM == 0 {
		c.BPM = defaultBPM
	}
	for i := range c.Bindings {
		b := &c.Bindings[i]
		act := control.Action(b.Action)
		if !control.Known(act) {
			return fault.New(fmt.Sprintf("unknown action %q bound to %q", b.Action, b.Control))
		}
		if !control.Motorized(act) {
			b.Motor = -1
		}
	}
	return nil
}

// Save writes the config to path, or to the default location when path
// is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ControlBindings converts the table to what the coordinator takes.
func (c *Config) ControlBindings() []control.Binding {
	out := make([]control.Binding, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		out = append(out, control.Binding{
			Control: b.Control,
			Action:  control.Action(b.Action),
			Motor:   b.Motor,
			Param:   b.Param,
		})
	}
	return out
}
