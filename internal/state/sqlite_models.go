package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertModelState records the fingerprints a model was last analyzed
// at. A zero AnalyzedAt is filled with the current time.
func (s *Store) UpsertModelState(ctx context.Context, st ModelState) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if st.AnalyzedAt.IsZero() {
		st.AnalyzedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO model_state (name, fingerprint, local_fingerprint, macro_hash, analyzed_at)
		VALUES (?, ?, ?, ?, ?)`,
		st.Name, st.Fingerprint, st.LocalFingerprint, st.MacroHash, st.AnalyzedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store model state: %w", err)
	}
	return nil
}

// GetModelState loads the last recorded state of one model. A model
// never analyzed is a miss, not an error.
func (s *Store) GetModelState(ctx context.Context, name string) (*ModelState, bool, error) {
	if s.db == nil {
		return nil, false, fmt.Errorf("database not opened")
	}

	var (
		st         ModelState
		analyzedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, fingerprint, local_fingerprint, macro_hash, analyzed_at
		FROM model_state WHERE name = ?`, name).
		Scan(&st.Name, &st.Fingerprint, &st.LocalFingerprint, &st.MacroHash, &analyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load model state: %w", err)
	}
	st.AnalyzedAt = time.UnixMilli(analyzedAt).UTC()
	return &st, true, nil
}

// AllModelStates loads the recorded state of every model, keyed by
// model name.
func (s *Store) AllModelStates(ctx context.Context) (map[string]*ModelState, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, fingerprint, local_fingerprint, macro_hash, analyzed_at
		FROM model_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to load model states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]*ModelState)
	for rows.Next() {
		var (
			st         ModelState
			analyzedAt int64
		)
		if err := rows.Scan(&st.Name, &st.Fingerprint, &st.LocalFingerprint, &st.MacroHash, &analyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model state: %w", err)
		}
		st.AnalyzedAt = time.UnixMilli(analyzedAt).UTC()
		states[st.Name] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load model states: %w", err)
	}
	return states, nil
}

// PruneModelStates deletes state rows for models no longer in the
// project and returns the number removed. An empty keep list clears
// the table.
func (s *Store) PruneModelStates(ctx context.Context, keep []string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	var (
		res sql.Result
		err error
	)
	if len(keep) == 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM model_state`)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
		args := make([]any, len(keep))
		for i, name := range keep {
			args[i] = name
		}
		res, err = s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM model_state WHERE name NOT IN (%s)`, placeholders), args...)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to prune model states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned model states: %w", err)
	}
	return n, nil
}
