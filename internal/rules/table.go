// Package rules holds the provisioned fragmentation rules and hands out
// datagram tags for outbound messages.
package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"firestige.xyz/schc/internal/schc"
)

var (
	ErrDuplicateRule = errors.New("rules: duplicate rule id")
	ErrRuleNotFound  = errors.New("rules: rule not found")

	// ErrProfileMismatch marks a rule whose header layout differs from the
	// one the table decodes fragments with.
	ErrProfileMismatch = errors.New("rules: rule profile differs from table profile")
)

// Rule describes how messages for one rule id are fragmented.
type Rule struct {
	ID             uint32 `yaml:"id"`
	Profile        string `yaml:"profile"`
	Window         bool   `yaml:"window"`
	IntegrityCheck bool   `yaml:"integrity_check"`
	Description    string `yaml:"description"`
}

// Options returns the fragmenter options the rule asks for.
func (r Rule) Options() []schc.Option {
	var opts []schc.Option
	if r.Window {
		opts = append(opts, schc.WithWindow())
	}
	if r.IntegrityCheck {
		opts = append(opts, schc.WithIntegrityCheck())
	}
	return opts
}

type file struct {
	Rules []Rule `yaml:"rules"`
}

// Table is an immutable set of rules keyed by id.
type Table struct {
	rules map[uint32]Rule
}

// Load reads a rules file whose rules all use profile def.
func Load(path string, def schc.Profile) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data, def)
}

// Parse decodes a YAML rules document of the form `rules: [...]`.
func Parse(data []byte, def schc.Profile) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return New(f.Rules, def)
}

// New validates rules and builds a table. Every rule shares the profile p;
// a rule may name it explicitly but not choose another one.
func New(rules []Rule, p schc.Profile) (*Table, error) {
	t := &Table{rules: make(map[uint32]Rule, len(rules))}
	for i, r := range rules {
		if r.Profile == "" {
			r.Profile = p.Name
		}
		if _, err := schc.ProfileByName(r.Profile); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if r.Profile != p.Name {
			return nil, fmt.Errorf("rules[%d]: %w: %s, want %s", i, ErrProfileMismatch, r.Profile, p.Name)
		}
		if r.ID > p.RuleID.Max() {
			return nil, fmt.Errorf("rules[%d]: %w: id %d does not fit %d bits of %s",
				i, schc.ErrFieldOverflow, r.ID, p.RuleID.Width, p.Name)
		}
		if r.Window && !p.HasWindow() {
			return nil, fmt.Errorf("rules[%d]: profile %s has no window bit", i, p.Name)
		}
		if _, ok := t.rules[r.ID]; ok {
			return nil, fmt.Errorf("rules[%d]: %w: %d", i, ErrDuplicateRule, r.ID)
		}
		t.rules[r.ID] = r
	}
	return t, nil
}

// Lookup returns the rule with the given id.
func (t *Table) Lookup(id uint32) (Rule, error) {
	r, ok := t.rules[id]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %d", ErrRuleNotFound, id)
	}
	return r, nil
}

// Known reports whether id is provisioned.
func (t *Table) Known(id uint32) bool {
	_, ok := t.rules[id]
	return ok
}

// IntegrityCheck reports whether terminal fragments of rule id carry a
// check sequence.
func (t *Table) IntegrityCheck(id uint32) bool {
	return t.rules[id].IntegrityCheck
}

// Rules returns all rules ordered by id.
func (t *Table) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int { return len(t.rules) }
