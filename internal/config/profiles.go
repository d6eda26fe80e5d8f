package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchProfile is one crawl target: a search term run against a source URL
// for one CV.
type SearchProfile struct {
	Name       string `yaml:"name"`
	SearchTerm string `yaml:"search_term"`
	CVPath     string `yaml:"cv_path"`
	SourceURL  string `yaml:"source_url"`
	MaxPages   int    `yaml:"max_pages,omitempty"`
}

type profileFile struct {
	Profiles []SearchProfile `yaml:"profiles"`
}

// LoadProfiles reads search profiles from a YAML file of the form
//
//	profiles:
//	  - name: go-berlin
//	    search_term: golang
//	    cv_path: cv/main.pdf
//	    source_url: https://www.stepstone.de/jobs/golang/in-berlin
func LoadProfiles(path string) ([]SearchProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file %s: %w", path, err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes and checks profile YAML.
func ParseProfiles(data []byte) ([]SearchProfile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles YAML: %w", err)
	}

	seen := make(map[string]bool, len(f.Profiles))
	for i := range f.Profiles {
		p := &f.Profiles[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = fmt.Sprintf("profile-%d", i+1)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("config error: duplicate profile name %q", p.Name)
		}
		seen[p.Name] = true

		switch {
		case strings.TrimSpace(p.SearchTerm) == "":
			return nil, fmt.Errorf("config error: profile %q: 'search_term' is required", p.Name)
		case strings.TrimSpace(p.CVPath) == "":
			return nil, fmt.Errorf("config error: profile %q: 'cv_path' is required", p.Name)
		case strings.TrimSpace(p.SourceURL) == "":
			return nil, fmt.Errorf("config error: profile %q: 'source_url' is required", p.Name)
		case p.MaxPages < 0:
			return nil, fmt.Errorf("config error: profile %q: 'max_pages' must be non-negative", p.Name)
		}
	}
	return f.Profiles, nil
}

// FindProfile returns the profile with the given name.
func FindProfile(profiles []SearchProfile, name string) (*SearchProfile, bool) {
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i], true
		}
	}
	return nil, false
}
