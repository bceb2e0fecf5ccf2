package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the YAML display profile: point colors and export chart geometry.
type Profile struct {
	Colors struct {
		Alarm   string `yaml:"alarm"`
		Neutral string `yaml:"neutral"`
		Line    string `yaml:"line"`
	} `yaml:"colors"`
	Chart struct {
		Title  string `yaml:"title"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
	} `yaml:"chart"`
	PreviewRows int `yaml:"preview_rows"`
}

// DefaultProfile returns the built-in profile.
func DefaultProfile() *Profile {
	p := &Profile{PreviewRows: 20}
	p.Colors.Alarm = "red"
	p.Colors.Neutral = "rgba(0,0,0,0.1)"
	p.Colors.Line = "#1f77b4"
	p.Chart.Title = "Anomaly scores"
	p.Chart.Width = 1024
	p.Chart.Height = 640
	return p
}

// LoadProfile reads a YAML profile, filling unset fields from DefaultProfile.
// An empty path returns the default.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	var loaded Profile
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	if loaded.Chart.Width < 0 || loaded.Chart.Height < 0 {
		return nil, fmt.Errorf("profile: chart size must be positive, got %dx%d", loaded.Chart.Width, loaded.Chart.Height)
	}
	if loaded.PreviewRows < 0 {
		return nil, fmt.Errorf("profile: preview_rows must not be negative")
	}
	merge(p, &loaded)
	return p, nil
}

func merge(dst, src *Profile) {
	if src.Colors.Alarm != "" {
		dst.Colors.Alarm = src.Colors.Alarm
	}
	if src.Colors.Neutral != "" {
		dst.Colors.Neutral = src.Colors.Neutral
	}
	if src.Colors.Line != "" {
		dst.Colors.Line = src.Colors.Line
	}
	if src.Chart.Title != "" {
		dst.Chart.Title = src.Chart.Title
	}
	if src.Chart.Width > 0 {
		dst.Chart.Width = src.Chart.Width
	}
	if src.Chart.Height > 0 {
		dst.Chart.Height = src.Chart.Height
	}
	if src.PreviewRows > 0 {
		dst.PreviewRows = src.PreviewRows
	}
}
