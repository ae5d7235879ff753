package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PutArtifact stores one content-addressed payload, replacing any
// previous payload for the same fingerprint and kind.
func (s *Store) PutArtifact(ctx context.Context, kind ArtifactKind, fingerprint, model string, payload []byte) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO artifacts (fingerprint, kind, model, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		fingerprint, string(kind), model, payload, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store %s artifact: %w", kind, err)
	}
	return nil
}

// GetArtifact loads a cached payload. A missing row is a miss, not an
// error.
func (s *Store) GetArtifact(ctx context.Context, kind ArtifactKind, fingerprint string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, fmt.Errorf("database not opened")
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM artifacts WHERE fingerprint = ? AND kind = ?`,
		fingerprint, string(kind)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s artifact: %w", kind, err)
	}
	return payload, true, nil
}

// DeleteArtifact removes one cache row. Deleting an absent row is a
// no-op.
func (s *Store) DeleteArtifact(ctx context.Context, kind ArtifactKind, fingerprint string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE fingerprint = ? AND kind = ?`,
		fingerprint, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete %s artifact: %w", kind, err)
	}
	return nil
}

// PutRender caches the render record of one model under its local
// fingerprint.
func (s *Store) PutRender(ctx context.Context, localFingerprint string, rec *RenderRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode render record: %w", err)
	}
	return s.PutArtifact(ctx, ArtifactRender, localFingerprint, rec.Model, payload)
}

// GetRender loads a cached render record by local fingerprint. A
// payload that no longer decodes is dropped and reported as a miss so
// the caller re-renders and rewrites it.
func (s *Store) GetRender(ctx context.Context, localFingerprint string) (*RenderRecord, bool, error) {
	payload, ok, err := s.GetArtifact(ctx, ArtifactRender, localFingerprint)
	if err != nil || !ok {
		return nil, false, err
	}

	var rec RenderRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.logger.Warn("dropping corrupt render artifact",
			slog.String("fingerprint", localFingerprint), slog.Any("error", err))
		if delErr := s.DeleteArtifact(ctx, ArtifactRender, localFingerprint); delErr != nil {
			return nil, false, delErr
		}
		return nil, false, nil
	}
	return &rec, true, nil
}

// PutLineage caches the resolved lineage record of one model under
// its transitive fingerprint.
func (s *Store) PutLineage(ctx context.Context, fingerprint string, rec *LineageRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode lineage record: %w", err)
	}
	return s.PutArtifact(ctx, ArtifactLineage, fingerprint, rec.Model, payload)
}

// GetLineage loads a cached lineage record by transitive fingerprint.
// A payload that no longer decodes is dropped and reported as a miss
// so the caller recomputes and rewrites it.
func (s *Store) GetLineage(ctx context.Context, fingerprint string) (*LineageRecord, bool, error) {
	payload, ok, err := s.GetArtifact(ctx, ArtifactLineage, fingerprint)
	if err != nil || !ok {
		return nil, false, err
	}

	var rec LineageRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.logger.Warn("dropping corrupt lineage artifact",
			slog.String("fingerprint", fingerprint), slog.Any("error", err))
		if delErr := s.DeleteArtifact(ctx, ArtifactLineage, fingerprint); delErr != nil {
			return nil, false, delErr
		}
		return nil, false, nil
	}
	return &rec, true, nil
}

// PruneArtifacts deletes cache rows created before the cutoff and
// returns the number removed.
func (s *Store) PruneArtifacts(ctx context.Context, before time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE created_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune artifacts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned artifacts: %w", err)
	}
	return n, nil
}
