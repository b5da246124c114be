package playbook

import "fmt"

// Validate checks structural integrity a loaded Playbook must satisfy
// before any Engine runs it: every transition's to_phase must name a
// real phase, the initial phase must exist, and phase names referenced
// by timeouts must resolve too. This catches authoring mistakes in the
// YAML at load time instead of at evaluation time.
func Validate(pb *Playbook) error {
	if pb.InitialPhase == "" {
		return fmt.Errorf("playbook %q: initial_phase is required", pb.Name)
	}
	if _, ok := pb.Phases[pb.InitialPhase]; !ok {
		return fmt.Errorf("playbook %q: initial_phase %q is not defined", pb.Name, pb.InitialPhase)
	}
	for name, ph := range pb.Phases {
		for _, t := range ph.Transitions {
			if t.ToPhase == "" {
				continue
			}
			if _, ok := pb.Phases[t.ToPhase]; !ok {
				return fmt.Errorf("playbook %q: phase %q transition %q targets undefined phase %q", pb.Name, name, t.Name, t.ToPhase)
			}
		}
		if ph.Timeout != nil && ph.TimeoutToPhase != "" {
			if _, ok := pb.Phases[ph.TimeoutToPhase]; !ok {
				return fmt.Errorf("playbook %q: phase %q timeout targets undefined phase %q", pb.Name, name, ph.TimeoutToPhase)
			}
		}
	}
	return nil
}
