// Package npc provides the NPC directory, @-address parsing, and autocomplete
// suggestions derived from it.
package npc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Record describes one NPC present in the world.
type Record struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Validate checks that the record satisfies basic invariants.
//
// Postcondition: Returns nil iff ID and Name are non-empty.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("npc record: id must not be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("npc record %q: name must not be empty", r.ID)
	}
	return nil
}

// Directory is an immutable, ordered set of NPC records.
// A nil *Directory behaves as an empty directory.
type Directory struct {
	records []Record
	byID    map[string]int
}

// NewDirectory builds a Directory preserving the order of records.
//
// Precondition: records must have unique IDs.
// Postcondition: Returns a Directory or an error on an invalid or duplicate record.
func NewDirectory(records []Record) (*Directory, error) {
	d := &Directory{
		records: make([]Record, 0, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, exists := d.byID[r.ID]; exists {
			return nil, fmt.Errorf("duplicate npc id %q", r.ID)
		}
		d.byID[r.ID] = len(d.records)
		d.records = append(d.records, r)
	}
	return d, nil
}

// Records returns a copy of the records in directory order.
func (d *Directory) Records() []Record {
	if d == nil {
		return nil
	}
	return append([]Record(nil), d.records...)
}

// Names returns NPC display names in directory order.
func (d *Directory) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.records))
	for i, r := range d.records {
		names[i] = r.Name
	}
	return names
}

// Get returns the record with the given ID.
//
// Postcondition: Returns (record, true) if found, or (Record{}, false) otherwise.
func (d *Directory) Get(id string) (Record, bool) {
	if d == nil {
		return Record{}, false
	}
	pos, ok := d.byID[id]
	if !ok {
		return Record{}, false
	}
	return d.records[pos], true
}

// Len returns the number of records.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

type directoryFile struct {
	NPCs []Record `yaml:"npcs"`
}

// LoadDirectoryFromBytes parses a directory from YAML with a top-level "npcs" list.
//
// Postcondition: Returns a validated *Directory, or an error.
func LoadDirectoryFromBytes(data []byte) (*Directory, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing npc directory YAML: %w", err)
	}
	return NewDirectory(f.NPCs)
}

// LoadDirectory reads a directory YAML file.
//
// Precondition: path must be a readable file.
// Postcondition: Returns a validated *Directory, or an error.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	d, err := LoadDirectoryFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return d, nil
}
