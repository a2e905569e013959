package pipeline

import (
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Parse unmarshals a pipeline script and validates it.
func Parse(data []byte) (*Script, error) {
	ps := new(Script)
	if err := yaml.Unmarshal(data, ps); err != nil {
		return nil, NewDefinitionError("err unmarshaling pipeline yaml: %v", err)
	}
	if err := Validate(ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Load reads and parses a pipeline script from a local path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDefinitionError("err reading pipeline script %s: %v", path, err)
	}
	return Parse(data)
}

// Validate checks the data-model invariants: at least one stage, stage names
// non-empty and unique, every stage and the post block non-empty on steps.
func Validate(ps *Script) error {
	if len(ps.Stages) == 0 {
		return NewDefinitionError("pipeline has no stages")
	}
	seen := make(map[string]struct{}, len(ps.Stages))
	for i, stage := range ps.Stages {
		name := strings.TrimSpace(stage.Stage)
		if name == "" {
			return NewDefinitionError("stage %d has an empty name", i+1)
		}
		if _, ok := seen[name]; ok {
			return NewDefinitionError("duplicate stage name '%s'", name)
		}
		seen[name] = struct{}{}
		if len(stage.Steps) == 0 {
			return NewDefinitionError("stage '%s' has no steps", name)
		}
		for j, step := range stage.Steps {
			if strings.TrimSpace(step.Script) == "" {
				return NewDefinitionError("stage '%s' step %d has an empty script", name, j+1)
			}
		}
	}
	for j, step := range ps.Post {
		if strings.TrimSpace(step.Script) == "" {
			return NewDefinitionError("post step %d has an empty script", j+1)
		}
	}
	return nil
}
