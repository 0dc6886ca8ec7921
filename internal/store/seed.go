package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storefront-catalog-service/internal/domain"
)

// SeedFile serves a static product snapshot from a YAML document of the form
//
//	products:
//	  - id: 1
//	    name: Django Course
//	    price: 55
type SeedFile struct {
	path string
}

func NewSeedFile(path string) *SeedFile {
	return &SeedFile{path: path}
}

type seedDocument struct {
	Products []map[string]any `yaml:"products"`
}

// LoadSnapshot re-reads the file on every call.
func (s *SeedFile) LoadSnapshot(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("store: read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes a YAML seed document into raw records.
func ParseSeed(raw []byte) ([]domain.Record, error) {
	var doc seedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("store: decode seed file: %w", err)
	}
	records := make([]domain.Record, 0, len(doc.Products))
	for _, p := range doc.Products {
		records = append(records, domain.Record(p))
	}
	return records, nil
}
