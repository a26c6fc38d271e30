package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarProfile lists the timestamping calendar servers to try, in order.
type CalendarProfile struct {
	Name      string   `yaml:"name" json:"name"`
	Calendars []string `yaml:"calendars" json:"calendars"`
}

// LoadCalendarProfile loads calendars.yaml from profileDir.
func LoadCalendarProfile(profileDir string) (*CalendarProfile, error) {
	path := filepath.Join(profileDir, "calendars.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load calendar profile: %w", err)
	}

	var profile CalendarProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse calendar profile: %w", err)
	}
	if len(profile.Calendars) == 0 {
		return nil, fmt.Errorf("calendar profile %q lists no calendars", path)
	}
	return &profile, nil
}
