package tracker

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the yaml file with process names offered for new jobs, e.g.
//
//	processes:
//	  - Raw material order
//	  - Laser cut
//	  - Welding
type Catalog struct {
	Processes []string `yaml:"processes" json:"processes" jsonschema:"required,minItems=1"`
}

// LoadCatalog reads process names from a yaml catalog file.
// Empty path returns DefaultProcesses.
func LoadCatalog(path string) ([]string, error) {
	if path == "" {
		return slices.Clone(DefaultProcesses), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from cli options
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	res := make([]string, 0, len(c.Processes))
	for _, p := range c.Processes {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(res, p) {
			continue
		}
		res = append(res, p)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("catalog %s has no processes", path)
	}
	return res, nil
}
