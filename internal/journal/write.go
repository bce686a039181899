package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/chainshadow/internal/pipeline"
)

const timeLayout = time.RFC3339Nano

// AppendDecision journals one decision. Re-appending the same cycle ID is a
// no-op and reports inserted=false.
func (s *Store) AppendDecision(ctx context.Context, e DecisionEntry) (bool, error) {
	diffFields := e.DiffFields
	if diffFields == nil {
		diffFields = []string{}
	}
	d := e.Decision
	fieldsJSON, err := json.Marshal(diffFields)
	if err != nil {
		return false, fmt.Errorf("append decision: %w", err)
	}
	decisionJSON, err := json.Marshal(d)
	if err != nil {
		return false, fmt.Errorf("append decision: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO gating_decisions
		(cycle_id, idx, rule, mode, reason, promote, canary, parity_hash, diff_fields, decision, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO NOTHING
	`,
		e.CycleID,
		e.Key.Index,
		e.Key.Rule,
		d.Mode,
		d.Reason,
		boolInt(d.Promote),
		boolInt(d.Canary),
		e.ParityHash,
		string(fieldsJSON),
		string(decisionJSON),
		e.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("append decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append decision: %w", err)
	}
	return n > 0, nil
}

// RecordErrorExport journals an export for key. When the same export hash
// was already seen for the key, it bumps seen_count and last_cycle and
// reports inserted=false.
func (s *Store) RecordErrorExport(ctx context.Context, cycleID string, key pipeline.Key, export pipeline.ErrorExport) (bool, error) {
	payload, err := json.Marshal(export.Records)
	if err != nil {
		return false, fmt.Errorf("record error export: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record error export: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO error_exports
		(idx, rule, hash, version, record_count, payload, first_cycle, last_cycle, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idx, rule, hash) DO NOTHING
	`,
		key.Index,
		key.Rule,
		export.Hash,
		export.Version,
		export.Count,
		string(payload),
		cycleID,
		cycleID,
		export.ExportedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("record error export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record error export: %w", err)
	}

	if n == 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE error_exports
			SET seen_count = seen_count + 1, last_cycle = ?
			WHERE idx = ? AND rule = ? AND hash = ? AND last_cycle <> ?
		`, cycleID, key.Index, key.Rule, export.Hash, cycleID)
		if err != nil {
			return false, fmt.Errorf("record error export: bump: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record error export: commit: %w", err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
