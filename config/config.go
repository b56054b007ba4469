// Package config holds the engine settings: key reservoir bounds and
// seed, language defaults, fixpoint limits and logging options.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"noetic/logging"
)

// ErrInvalidConfig is returned when settings fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// KeyRange bounds the numeric short keys handed out per namespace.
type KeyRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Settings configures a store and its rule engine.
type Settings struct {
	DefaultLanguage    string   `yaml:"default_language"`
	SupportedLanguages []string `yaml:"supported_languages"`

	Keys    KeyRange `yaml:"keys"`
	KeySeed int64    `yaml:"key_seed"`

	// MaxPasses bounds fixpoint iteration of the rule engine.
	MaxPasses int `yaml:"max_passes"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the settings used when no file is supplied.
func Default() *Settings {
	return &Settings{
		DefaultLanguage:    "en",
		SupportedLanguages: []string{"en", "de"},
		Keys:               KeyRange{Min: 1000, Max: 99999},
		KeySeed:            1750,
		MaxPasses:          100,
	}
}

// Load reads settings from a YAML file, layered over Default.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks internal consistency.
func (s *Settings) Validate() error {
	if s.DefaultLanguage == "" {
		return errors.Wrap(ErrInvalidConfig, "default_language must not be empty")
	}
	found := false
	for _, lang := range s.SupportedLanguages {
		if lang == s.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(ErrInvalidConfig, "default_language %q not in supported_languages", s.DefaultLanguage)
	}
	if s.Keys.Min <= 0 {
		return errors.Wrap(ErrInvalidConfig, "keys.min must be positive")
	}
	if s.Keys.Max <= s.Keys.Min {
		return errors.Wrap(ErrInvalidConfig, "keys.max must exceed keys.min")
	}
	if s.MaxPasses <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max_passes must be positive")
	}
	return nil
}
