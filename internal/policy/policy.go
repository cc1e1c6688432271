// Package policy defines the fleet configuration standard and evaluates
// device snapshots against it.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the organizational configuration standard. It is loaded once at
// process start and passed explicitly to every evaluation; it is never
// mutated afterwards.
type Policy struct {
	// TimeZone every display must report.
	TimeZone string `yaml:"time_zone"`
	// PreferredApp is the application id displays should run as their
	// content source.
	PreferredApp string `yaml:"preferred_app"`
	// AcceptableSource is the input source tolerated when the preferred
	// app is unavailable.
	AcceptableSource string `yaml:"acceptable_source"`
	// ExpectedPower is the power state displays must be in.
	ExpectedPower string `yaml:"expected_power"`
}

// Default returns the built-in fleet standard.
func Default() Policy {
	return Policy{
		TimeZone:         "America/Chicago",
		PreferredApp:     "com.digitaltouchsystems.snap",
		AcceptableSource: "CUSTOM",
		ExpectedPower:    "ON",
	}
}

// Load reads a policy file, filling unset fields from the default. An empty
// path returns the default unchanged.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read policy file: %w", err)
	}
	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return p, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if file.TimeZone != "" {
		p.TimeZone = file.TimeZone
	}
	if file.PreferredApp != "" {
		p.PreferredApp = file.PreferredApp
	}
	if file.AcceptableSource != "" {
		p.AcceptableSource = file.AcceptableSource
	}
	if file.ExpectedPower != "" {
		p.ExpectedPower = file.ExpectedPower
	}
	return p, nil
}

// CheckSelector names the checks a validation run should perform.
type CheckSelector struct {
	TimeZone            bool `json:"timeZone"`
	DefaultSource       bool `json:"defaultSource"`
	PowerSettings       bool `json:"powerSettings"`
	PowerSchedules      bool `json:"powerSchedules"`
	RecommendedSettings bool `json:"recommendedSettings"`
}

// All returns a selector with every check enabled.
func All() CheckSelector {
	return CheckSelector{
		TimeZone:            true,
		DefaultSource:       true,
		PowerSettings:       true,
		PowerSchedules:      true,
		RecommendedSettings: true,
	}
}

// Any reports whether at least one check is selected.
func (c CheckSelector) Any() bool {
	return c.TimeZone || c.DefaultSource || c.PowerSettings || c.PowerSchedules || c.RecommendedSettings
}
