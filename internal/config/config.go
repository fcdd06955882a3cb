// Package config models the MCP server configuration file: two buckets of
// named server entries (enabled and disabled) plus arbitrary other top-level
// fields that must survive every read/mutate/write cycle untouched.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Bucket keys in the configuration file.
const (
	EnabledKey  = "enabled"
	DisabledKey = "disabled"
)

// StructureIssueKind identifies a recoverable problem with the bucket keys.
type StructureIssueKind int

const (
	MissingEnabledBucket StructureIssueKind = iota
	EnabledBucketWrongType
	DisabledBucketWrongType
)

// StructureIssue describes one recoverable structural problem. Normalize
// resolves all of them; a missing bucket is also materialized losslessly by
// any mutating operation, while a wrong-type bucket blocks mutations until
// the user normalizes explicitly.
type StructureIssue struct {
	Kind StructureIssueKind
	Key  string
}

func (i StructureIssue) String() string {
	switch i.Kind {
	case MissingEnabledBucket:
		return fmt.Sprintf("missing %q bucket", i.Key)
	case EnabledBucketWrongType, DisabledBucketWrongType:
		return fmt.Sprintf("%q is not an object", i.Key)
	default:
		return fmt.Sprintf("unknown issue with %q", i.Key)
	}
}

// ServerState is the bucket a server name currently lives in.
type ServerState int

const (
	StateUnknown ServerState = iota
	StateEnabled
	StateDisabled
)

// Configuration is the in-memory form of the config file. Enabled and
// Disabled map server name to its opaque definition; definitions are carried
// as raw JSON and never introspected. Extra holds every other top-level key
// verbatim, including a bucket key whose value had the wrong type (Normalize
// replaces those with empty buckets).
type Configuration struct {
	Enabled  map[string]json.RawMessage
	Disabled map[string]json.RawMessage
	Extra    map[string]json.RawMessage

	issues []StructureIssue
}

// Parse parses raw config file bytes. The top level must be a JSON object;
// anything else is a parse error. Missing or mistyped buckets are recorded as
// structure issues, not errors.
func Parse(raw []byte) (*Configuration, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Configuration{Extra: make(map[string]json.RawMessage)}

	for key, value := range top {
		switch key {
		case EnabledKey:
			bucket, ok := asBucket(value)
			if !ok {
				cfg.issues = append(cfg.issues, StructureIssue{Kind: EnabledBucketWrongType, Key: key})
				cfg.Extra[key] = value
				continue
			}
			cfg.Enabled = bucket
		case DisabledKey:
			bucket, ok := asBucket(value)
			if !ok {
				cfg.issues = append(cfg.issues, StructureIssue{Kind: DisabledBucketWrongType, Key: key})
				cfg.Extra[key] = value
				continue
			}
			cfg.Disabled = bucket
		default:
			cfg.Extra[key] = value
		}
	}

	if cfg.Enabled == nil && !cfg.hasIssue(EnabledBucketWrongType) {
		cfg.issues = append(cfg.issues, StructureIssue{Kind: MissingEnabledBucket, Key: EnabledKey})
	}

	return cfg, nil
}

func asBucket(value json.RawMessage) (map[string]json.RawMessage, bool) {
	var bucket map[string]json.RawMessage
	if err := json.Unmarshal(value, &bucket); err != nil {
		return nil, false
	}
	if bucket == nil {
		bucket = make(map[string]json.RawMessage)
	}
	return bucket, true
}

func (c *Configuration) hasIssue(kind StructureIssueKind) bool {
	for _, issue := range c.issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// Issues returns the structure issues recorded at parse time. A configuration
// built by Normalize has none.
func (c *Configuration) Issues() []StructureIssue {
	return c.issues
}

// Normalize materializes both buckets as empty maps when they are absent or
// had the wrong type, dropping the mistyped raw value but nothing else.
// Idempotent.
func (c *Configuration) Normalize() {
	if c.Enabled == nil {
		c.Enabled = make(map[string]json.RawMessage)
	}
	if c.Disabled == nil {
		c.Disabled = make(map[string]json.RawMessage)
	}
	if c.Extra == nil {
		c.Extra = make(map[string]json.RawMessage)
	}
	delete(c.Extra, EnabledKey)
	delete(c.Extra, DisabledKey)
	c.issues = nil
}

// Marshal serializes the configuration as a pretty-printed JSON object with
// two-space indentation. Untouched values round-trip byte-for-byte because
// they are carried as raw JSON.
func (c *Configuration) Marshal() ([]byte, error) {
	top := make(map[string]json.RawMessage, len(c.Extra)+2)
	for key, value := range c.Extra {
		top[key] = value
	}
	if c.Enabled != nil {
		raw, err := json.Marshal(c.Enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal enabled bucket: %w", err)
		}
		top[EnabledKey] = raw
	}
	if c.Disabled != nil {
		raw, err := json.Marshal(c.Disabled)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal disabled bucket: %w", err)
		}
		top[DisabledKey] = raw
	}

	data, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return append(data, '\n'), nil
}

// StateOf reports which bucket holds name.
func (c *Configuration) StateOf(name string) ServerState {
	if _, ok := c.Enabled[name]; ok {
		return StateEnabled
	}
	if _, ok := c.Disabled[name]; ok {
		return StateDisabled
	}
	return StateUnknown
}

// Names returns the union of all known server names, sorted alphabetically
// for display.
func (c *Configuration) Names() []string {
	names := make([]string, 0, len(c.Enabled)+len(c.Disabled))
	for name := range c.Enabled {
		names = append(names, name)
	}
	for name := range c.Disabled {
		if _, ok := c.Enabled[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy whose buckets and extra map can be mutated without
// affecting the receiver. Raw definition values are shared; they are treated
// as immutable everywhere.
func (c *Configuration) Clone() *Configuration {
	clone := &Configuration{
		Extra:  make(map[string]json.RawMessage, len(c.Extra)),
		issues: append([]StructureIssue(nil), c.issues...),
	}
	if c.Enabled != nil {
		clone.Enabled = make(map[string]json.RawMessage, len(c.Enabled))
		for name, def := range c.Enabled {
			clone.Enabled[name] = def
		}
	}
	if c.Disabled != nil {
		clone.Disabled = make(map[string]json.RawMessage, len(c.Disabled))
		for name, def := range c.Disabled {
			clone.Disabled[name] = def
		}
	}
	for key, value := range c.Extra {
		clone.Extra[key] = value
	}
	return clone
}
