// Package oui resolves a MAC address to its manufacturer by the IEEE OUI prefix.
package oui

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed data/oui.json
var embeddedDB []byte

type DB struct {
	vendors map[string]string
}

func LoadEmbedded() (*DB, error) {
	return Load(embeddedDB)
}

// LoadFile reads a {"PREFIX": "Vendor"} JSON file and merges the embedded
// table underneath it.
func LoadFile(path string) (*DB, error) {
	db, err := LoadEmbedded()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return db, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oui file: %w", err)
	}
	extra, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("parse oui file %s: %w", path, err)
	}
	for prefix, vendor := range extra.vendors {
		db.vendors[prefix] = vendor
	}
	return db, nil
}

func Load(data []byte) (*DB, error) {
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	normalized := make(map[string]string, len(m))
	for k, v := range m {
		normalized[normalizePrefix(k)] = strings.TrimSpace(v)
	}
	return &DB{vendors: normalized}, nil
}

// Lookup returns the vendor for mac, or "" when the prefix is unknown.
func (db *DB) Lookup(mac string) string {
	if db == nil {
		return ""
	}
	return db.vendors[normalizePrefix(mac)]
}

func normalizePrefix(v string) string {
	replacer := strings.NewReplacer(":", "", "-", "", ".", "")
	v = strings.ToUpper(strings.TrimSpace(replacer.Replace(v)))
	if len(v) >= 6 {
		return v[:6]
	}
	return v
}
