// Package ingest moves stored runs in and out of JSON files.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"litminer/internal/repo"
)

// Loader exports the stored run to a file and restores it from one.
type Loader struct {
	repo repo.Repository
}

// NewLoader creates a new Loader instance
func NewLoader(repo repo.Repository) *Loader {
	return &Loader{repo: repo}
}

// Snapshot reads the stored run back into a snapshot.
func (l *Loader) Snapshot(ctx context.Context) (repo.Snapshot, error) {
	snap, err := l.repo.LoadRun(ctx)
	if err != nil {
		return repo.Snapshot{}, fmt.Errorf("failed to load run: %w", err)
	}
	return snap, nil
}

// ExportToFile writes the stored run to filePath as indented JSON.
func (l *Loader) ExportToFile(ctx context.Context, filePath string) error {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	log.Info().Str("file", filePath).Str("run_id", snap.Run.ID).Int("articles", len(snap.Articles)).Msg("Exported run")
	return nil
}

// LoadFromFile replaces the stored run with the one in filePath.
func (l *Loader) LoadFromFile(ctx context.Context, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	var snap repo.Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", filePath, err)
	}
	if err := validate(snap); err != nil {
		return fmt.Errorf("invalid run in %s: %w", filePath, err)
	}
	if err := l.repo.ReplaceAll(ctx, snap); err != nil {
		return err
	}
	log.Info().Str("file", filePath).Str("run_id", snap.Run.ID).Int("articles", len(snap.Articles)).Msg("Loaded run")
	return nil
}

func validate(snap repo.Snapshot) error {
	if _, err := uuid.Parse(snap.Run.ID); err != nil {
		return fmt.Errorf("run id %q: %w", snap.Run.ID, err)
	}
	if len(snap.Articles) == 0 {
		return errors.New("run has no articles")
	}
	names := make(map[string]struct{}, len(snap.Entities))
	for _, e := range snap.Entities {
		names[e.Name] = struct{}{}
	}
	for _, r := range snap.Relations {
		_, s := names[r.Subject]
		_, o := names[r.Object]
		if !s || !o {
			return fmt.Errorf("relation %s %s %s references an unknown entity", r.Subject, r.Predicate, r.Object)
		}
	}
	return nil
}
