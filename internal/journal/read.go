package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/chainshadow/internal/pipeline"
)

// ListDecisions returns journaled decisions, newest first.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListDecisions(ctx context.Context, f Filter) ([]DecisionEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Index != "" {
		where = append(where, "idx = ?")
		args = append(args, f.Index)
	}
	if f.Rule != "" {
		where = append(where, "rule = ?")
		args = append(args, f.Rule)
	}

	query := `SELECT seq, cycle_id, idx, rule, parity_hash, diff_fields, decision, recorded_at FROM gating_decisions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	entries := []DecisionEntry{}
	for rows.Next() {
		var (
			e                        DecisionEntry
			fieldsJSON, decisionJSON string
			recordedAt               string
		)
		if err := rows.Scan(&e.Seq, &e.CycleID, &e.Key.Index, &e.Key.Rule, &e.ParityHash,
			&fieldsJSON, &decisionJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &e.DiffFields); err != nil {
			return nil, fmt.Errorf("decode diff fields for %s: %w", e.CycleID, err)
		}
		if err := json.Unmarshal([]byte(decisionJSON), &e.Decision); err != nil {
			return nil, fmt.Errorf("decode decision for %s: %w", e.CycleID, err)
		}
		if e.RecordedAt, err = time.Parse(timeLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("decode recorded_at for %s: %w", e.CycleID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return entries, nil
}

// ListErrorExports returns the distinct exports recorded for key, oldest first.
func (s *Store) ListErrorExports(ctx context.Context, key pipeline.Key) ([]ExportEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, version, record_count, payload, first_cycle, last_cycle, seen_count, first_seen_at
		FROM error_exports
		WHERE idx = ? AND rule = ?
		ORDER BY first_seen_at ASC, hash COLLATE BINARY ASC
	`, key.Index, key.Rule)
	if err != nil {
		return nil, fmt.Errorf("query error exports: %w", err)
	}
	defer rows.Close()

	entries := []ExportEntry{}
	for rows.Next() {
		var (
			e         ExportEntry
			payload   string
			firstSeen string
		)
		e.Key = key
		if err := rows.Scan(&e.Export.Hash, &e.Export.Version, &e.Export.Count, &payload,
			&e.FirstCycle, &e.LastCycle, &e.SeenCount, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan error export: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Export.Records); err != nil {
			return nil, fmt.Errorf("decode export %s: %w", e.Export.Hash, err)
		}
		if e.FirstSeen, err = time.Parse(timeLayout, firstSeen); err != nil {
			return nil, fmt.Errorf("decode first_seen_at for %s: %w", e.Export.Hash, err)
		}
		e.Export.ExportedAt = e.FirstSeen
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error exports: %w", err)
	}
	return entries, nil
}
