// Package ops implements the pure configuration transformations: toggling a
// server between buckets, bulk enable, exact selection, and the smart preset
// merge. Operations never perform I/O and never mutate their input.
package ops

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eversonl/claude-config-manager/internal/config"
)

// ErrUnknownServer is returned when an operation references a name that is in
// neither bucket.
type ErrUnknownServer struct {
	Name string
}

func (e *ErrUnknownServer) Error() string {
	return fmt.Sprintf("unknown server: %q", e.Name)
}

// ErrNeedsNormalize is returned when a mutating operation finds a bucket key
// holding a non-object value. Replacing that value loses data, so it only
// happens on an explicit normalize.
type ErrNeedsNormalize struct {
	Issues []config.StructureIssue
}

func (e *ErrNeedsNormalize) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("configuration needs normalizing first: %s", strings.Join(parts, "; "))
}

func wrongTypeIssues(cfg *config.Configuration) []config.StructureIssue {
	var found []config.StructureIssue
	for _, issue := range cfg.Issues() {
		if issue.Kind == config.EnabledBucketWrongType || issue.Kind == config.DisabledBucketWrongType {
			found = append(found, issue)
		}
	}
	return found
}

// prepare clones cfg for mutation, materializing absent buckets as empty maps.
// That is lossless; a bucket key with a non-object value is not, so those are
// refused rather than silently dropped.
func prepare(cfg *config.Configuration) (*config.Configuration, error) {
	if issues := wrongTypeIssues(cfg); len(issues) > 0 {
		return nil, &ErrNeedsNormalize{Issues: issues}
	}
	out := cfg.Clone()
	if out.Enabled == nil {
		out.Enabled = make(map[string]json.RawMessage)
	}
	if out.Disabled == nil {
		out.Disabled = make(map[string]json.RawMessage)
	}
	return out, nil
}

// Toggle moves name from enabled to disabled or vice versa. The move is
// all-or-nothing: the returned configuration has the entry in exactly one
// bucket with its definition unchanged.
func Toggle(cfg *config.Configuration, name string) (*config.Configuration, error) {
	out, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	if def, ok := out.Enabled[name]; ok {
		delete(out.Enabled, name)
		out.Disabled[name] = def
		return out, nil
	}
	if def, ok := out.Disabled[name]; ok {
		delete(out.Disabled, name)
		out.Enabled[name] = def
		return out, nil
	}
	return nil, &ErrUnknownServer{Name: name}
}

// EnableAll moves every disabled entry into the enabled bucket. A second
// application is a no-op.
func EnableAll(cfg *config.Configuration) (*config.Configuration, error) {
	out, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	for name, def := range out.Disabled {
		out.Enabled[name] = def
	}
	out.Disabled = make(map[string]json.RawMessage)
	return out, nil
}

// SelectExactly repartitions the known names: names in selected that exist go
// to enabled, every other known name goes to disabled. Selected names that do
// not exist are returned as warnings; they are never an error and never
// create entries.
func SelectExactly(cfg *config.Configuration, selected []string) (*config.Configuration, []string, error) {
	out, err := prepare(cfg)
	if err != nil {
		return nil, nil, err
	}

	defs := make(map[string]json.RawMessage, len(out.Enabled)+len(out.Disabled))
	for name, def := range out.Enabled {
		defs[name] = def
	}
	for name, def := range out.Disabled {
		defs[name] = def
	}

	wanted := make(map[string]bool, len(selected))
	var unknown []string
	for _, name := range selected {
		if _, ok := defs[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		wanted[name] = true
	}

	out.Enabled = make(map[string]json.RawMessage, len(wanted))
	out.Disabled = make(map[string]json.RawMessage, len(defs)-len(wanted))
	for name, def := range defs {
		if wanted[name] {
			out.Enabled[name] = def
		} else {
			out.Disabled[name] = def
		}
	}

	return out, unknown, nil
}

// SmartMerge repositions every server known to current according to the
// preset's placement, always keeping current's definition value. Names the
// preset does not know are forced into disabled and reported as newly
// discovered. Names only the preset knows are dropped: a smart merge never
// introduces entries.
func SmartMerge(current, preset *config.Configuration) (*config.Configuration, []string, error) {
	if issues := wrongTypeIssues(preset); len(issues) > 0 {
		return nil, nil, fmt.Errorf("preset: %w", &ErrNeedsNormalize{Issues: issues})
	}
	out, err := prepare(current)
	if err != nil {
		return nil, nil, err
	}

	defs := make(map[string]json.RawMessage, len(out.Enabled)+len(out.Disabled))
	for name, def := range out.Enabled {
		defs[name] = def
	}
	for name, def := range out.Disabled {
		defs[name] = def
	}

	out.Enabled = make(map[string]json.RawMessage)
	out.Disabled = make(map[string]json.RawMessage)

	var discovered []string
	for name, def := range defs {
		switch preset.StateOf(name) {
		case config.StateEnabled:
			out.Enabled[name] = def
		case config.StateDisabled:
			out.Disabled[name] = def
		default:
			out.Disabled[name] = def
			discovered = append(discovered, name)
		}
	}

	return out, discovered, nil
}
