// Package profile holds the character profile assembled during a session.
package profile

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Trait is a single named attribute of the character.
type Trait struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Snapshot is an immutable copy of a Profile.
type Snapshot struct {
	Traits    []Trait   `json:"traits"`
	Notes     []string  `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile is a concurrency-safe trait map that remembers insertion order.
// Writes replace whole values; there are no per-key deletes.
type Profile struct {
	mu        sync.RWMutex
	order     []string
	traits    map[string]string
	notes     []string
	updatedAt time.Time
}

// New returns an empty profile.
func New() *Profile {
	return &Profile{traits: make(map[string]string)}
}

// FromSnapshot rebuilds a profile, e.g. from an archive.
func FromSnapshot(s Snapshot) *Profile {
	p := New()
	p.MergeTraits(s.Traits)
	p.AddNotes(s.Notes...)
	p.updatedAt = s.UpdatedAt
	return p
}

// MergeTraits applies traits in order, last write wins, and returns how
// many keys were added or changed.
func (p *Profile) MergeTraits(traits []Trait) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := 0
	for _, t := range traits {
		key := strings.TrimSpace(t.Key)
		value := strings.TrimSpace(t.Value)
		if key == "" || value == "" {
			continue
		}
		old, exists := p.traits[key]
		if !exists {
			p.order = append(p.order, key)
		}
		if !exists || old != value {
			p.traits[key] = value
			changed++
		}
	}
	if changed > 0 {
		p.updatedAt = time.Now()
	}
	return changed
}

// AddNotes appends free-text notes, skipping blanks and exact duplicates.
func (p *Profile) AddNotes(notes ...string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n == "" || containsString(p.notes, n) {
			continue
		}
		p.notes = append(p.notes, n)
		added++
	}
	if added > 0 {
		p.updatedAt = time.Now()
	}
	return added
}

// Len returns the number of traits.
func (p *Profile) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Get returns a single trait value.
func (p *Profile) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.traits[key]
	return v, ok
}

// Snapshot returns a copy that later writes cannot affect.
func (p *Profile) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Traits:    make([]Trait, len(p.order)),
		Notes:     append([]string(nil), p.notes...),
		UpdatedAt: p.updatedAt,
	}
	for i, k := range p.order {
		s.Traits[i] = Trait{Key: k, Value: p.traits[k]}
	}
	return s
}

// FullText renders the profile for the evaluator and writer prompts.
func (p *Profile) FullText() string {
	return p.Snapshot().FullText()
}

// Map returns the traits as a map.
func (s Snapshot) Map() map[string]string {
	m := make(map[string]string, len(s.Traits))
	for _, t := range s.Traits {
		m[t.Key] = t.Value
	}
	return m
}

// Empty reports whether the snapshot holds nothing.
func (s Snapshot) Empty() bool {
	return len(s.Traits) == 0 && len(s.Notes) == 0
}

// FullText renders traits as "key: value" lines followed by notes.
func (s Snapshot) FullText() string {
	var sb strings.Builder
	for _, t := range s.Traits {
		fmt.Fprintf(&sb, "%s: %s\n", t.Key, t.Value)
	}
	if len(s.Notes) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		for _, n := range s.Notes {
			fmt.Fprintf(&sb, "- %s\n", n)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
