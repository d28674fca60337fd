// Package store holds the controller's entity model: per category, records
// keyed by a stable UID and merged in place across polling cycles.
package store

import (
	"sort"
	"sync"

	"github.com/spf13/cast"
)

// SingleUID keys the only record of singleton categories such as resource.
const SingleUID = "_"

// Category names used by the controller.
const (
	Interface   = "interface"
	ARP         = "arp"
	Client      = "client"
	DNS         = "dns"
	DHCP        = "dhcp"
	DHCPServer  = "dhcp-server"
	DHCPNetwork = "dhcp-network"
	Host        = "host"
	NAT         = "nat"
	Resource    = "resource"
	Script      = "script"
	Queue       = "queue"
	Accounting  = "accounting"
	Routerboard = "routerboard"
	FWUpdate    = "fw-update"
)

// Record is one entity. Values are string, bool, int64 or float64.
type Record map[string]any

func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

func (r Record) String(key string) string {
	return cast.ToString(r[key])
}

func (r Record) Bool(key string) bool {
	return cast.ToBool(r[key])
}

func (r Record) Int64(key string) int64 {
	return cast.ToInt64(r[key])
}

func (r Record) Float64(key string) float64 {
	return cast.ToFloat64(r[key])
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

// Section maps UID to record within one category.
type Section map[string]Record

// Ensure returns the record for uid, creating it when absent.
func (s Section) Ensure(uid string) Record {
	record, ok := s[uid]
	if !ok {
		record = Record{}
		s[uid] = record
	}
	return record
}

// UIDs returns the keys in sorted order.
func (s Section) UIDs() []string {
	out := make([]string, 0, len(s))
	for uid := range s {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

func (s Section) Clone() Section {
	out := make(Section, len(s))
	for uid, record := range s {
		out[uid] = record.Clone()
	}
	return out
}

// Snapshot is a deep copy of the whole model.
type Snapshot map[string]Section

// Store guards the model. Writers work on a private copy of one section and
// publish it atomically so readers never see a half-merged section.
type Store struct {
	mu       sync.RWMutex
	sections map[string]Section
}

func New() *Store {
	return &Store{sections: make(map[string]Section)}
}

// Section returns a copy of one category.
func (s *Store) Section(category string) Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections[category].Clone()
}

// Record returns a copy of one record.
func (s *Store) Record(category, uid string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.sections[category][uid]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// Single returns the record of a singleton category, empty when unset.
func (s *Store) Single(category string) Record {
	record, ok := s.Record(category, SingleUID)
	if !ok {
		return Record{}
	}
	return record
}

// Update runs fn on a copy of the section and stores the result. When fn
// fails the stored section is left untouched.
func (s *Store) Update(category string, fn func(Section) (Section, error)) error {
	working := s.Section(category)
	updated, err := fn(working)
	if err != nil {
		return err
	}
	if updated == nil {
		updated = Section{}
	}
	s.mu.Lock()
	s.sections[category] = updated
	s.mu.Unlock()
	return nil
}

// Replace stores section as the new content of category.
func (s *Store) Replace(category string, section Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[category] = section.Clone()
}

// Snapshot returns a deep copy of every category.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.sections))
	for category, section := range s.sections {
		out[category] = section.Clone()
	}
	return out
}

// Categories returns the populated category names, sorted.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sections))
	for category := range s.sections {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}
