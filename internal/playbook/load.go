package playbook

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a playbook definition from a YAML file (§4.4: playbooks
// are declarative and data-driven, not compiled).
func Load(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a playbook definition from raw YAML bytes.
func Parse(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}
	for name, ph := range pb.Phases {
		ph.Name = name
	}
	if err := Validate(&pb); err != nil {
		return nil, err
	}
	return &pb, nil
}
