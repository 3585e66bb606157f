package backend

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"wastelink/internal/model"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the YAML fixture loaded into a backend at start.
type Seed struct {
	Collectors []model.Collector     `yaml:"collectors"`
	Requests   []model.PickupRequest `yaml:"requests"`
	Tasks      []model.CollectorTask `yaml:"tasks"`
}

func ParseSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return s, nil
}

// LoadSeed reads path, or the built-in demo seed when path is empty.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return ParseSeed(bytes.NewReader(defaultSeed))
	}
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer func() { _ = f.Close() }()
	return ParseSeed(f)
}

// Apply writes every seeded entity to b. Entities are validated first so a
// bad file leaves b untouched.
func (s Seed) Apply(ctx context.Context, b Backend) error {
	for _, r := range s.Requests {
		if !r.Status.Valid() {
			return fmt.Errorf("seed request %s: invalid status %q", r.ID, r.Status)
		}
		if _, err := model.ParseWasteType(string(r.WasteType)); err != nil {
			return fmt.Errorf("seed request %s: %w", r.ID, err)
		}
	}
	for _, t := range s.Tasks {
		if t.Status != "" && !t.Status.Valid() {
			return fmt.Errorf("seed task %s: invalid status %q", t.ID, t.Status)
		}
	}
	for _, c := range s.Collectors {
		if err := b.UpsertCollector(ctx, c); err != nil {
			return err
		}
	}
	for _, r := range s.Requests {
		if _, err := b.CreateRequest(ctx, r); err != nil {
			return fmt.Errorf("seed request %s: %w", r.ID, err)
		}
	}
	for _, t := range s.Tasks {
		if _, err := b.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("seed task %s: %w", t.ID, err)
		}
	}
	return nil
}
