// Package reading holds decoded sensor readings and their aggregation set.
package reading

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blesense/internal/device"
)

// Reading is one decoded named sensor value.
type Reading struct {
	Name   string          `json:"name"`
	Value  float64         `json:"value"`
	Unit   string          `json:"unit,omitempty"`
	Device device.Identity `json:"device"`
	Time   time.Time       `json:"time"`
}

func (r Reading) String() string {
	if r.Unit == "" {
		return fmt.Sprintf("%s=%g", r.Name, r.Value)
	}
	return fmt.Sprintf("%s=%g%s", r.Name, r.Value, r.Unit)
}

// Set maps reading names to the most recently seen Reading of that name.
// Names keep the order in which they were first seen.
type Set struct {
	mu       sync.RWMutex
	readings *orderedmap.OrderedMap[string, Reading]
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{readings: orderedmap.New[string, Reading]()}
}

// Put stores r under its name, replacing any earlier reading of the same name.
// Returns the number of distinct names after the insertion.
func (s *Set) Put(r Reading) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings.Set(r.Name, r)
	return s.readings.Len()
}

// Get returns the reading stored under name.
func (s *Set) Get(name string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readings.Get(name)
}

// Len returns the number of distinct names.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readings.Len()
}

// Names returns the reading names in first-seen order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, s.readings.Len())
	for pair := s.readings.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Readings returns the stored readings in first-seen order.
func (s *Set) Readings() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, s.readings.Len())
	for pair := s.readings.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// MarshalJSON encodes the set as an object keyed by reading name, in first-seen order.
func (s *Set) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.readings)
}
