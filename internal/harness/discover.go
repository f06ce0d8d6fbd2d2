package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DuplicateScenarioError is returned when two files declare the same
// scenario name. Names key golden files, so they must be unique.
type DuplicateScenarioError struct {
	Name  string
	First string
	Again string
}

// Error implements the error interface.
func (e *DuplicateScenarioError) Error() string {
	return fmt.Sprintf("scenario %q declared in both %s and %s", e.Name, e.First, e.Again)
}

// Discover lists scenario files under path. A file path is returned as is;
// a directory is walked for *.yaml and *.yml files in lexical order.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// LoadAll discovers and parses every scenario under path.
func LoadAll(path string) ([]*Scenario, error) {
	files, err := Discover(path)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(files))
	scenarios := make([]*Scenario, 0, len(files))
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, &DuplicateScenarioError{Name: s.Name, First: prev, Again: f}
		}
		seen[s.Name] = f
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
