package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/chainshadow/internal/ir"
)

// ExportVersion is the schema version of ErrorExport.
const ExportVersion = 1

// RedactedPlaceholder replaces every redacted match.
const RedactedPlaceholder = "[REDACTED]"

// ErrorRecord is the structured twin of one legacy error token.
type ErrorRecord struct {
	Phase          string            `json:"phase"`
	Classification Classification    `json:"classification"`
	Message        string            `json:"message"`
	Detail         string            `json:"detail,omitempty"`
	Attempt        int               `json:"attempt"`
	Timestamp      time.Time         `json:"timestamp"`
	Token          string            `json:"token"`
	Context        map[string]string `json:"context,omitempty"`
}

// Token formats the legacy "<classification>:<phase>:<message>" token.
func Token(class Classification, phase, message string) string {
	return fmt.Sprintf("%s:%s:%s", class, phase, message)
}

// Redactor masks sensitive substrings in error messages.
// A nil *Redactor is valid and leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles patterns. Empty patterns are skipped.
func NewRedactor(patterns []string) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact replaces every match of every pattern with RedactedPlaceholder.
func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, RedactedPlaceholder)
	}
	return s
}

// ErrorExport is the versioned batch of structured records for one cycle.
//
// Hash covers the records with timestamps removed, so two cycles failing the
// same way export the same hash.
type ErrorExport struct {
	Version    int           `json:"version"`
	Count      int           `json:"count"`
	Records    []ErrorRecord `json:"records"`
	Hash       string        `json:"hash"`
	ExportedAt time.Time     `json:"exported_at"`
}

// BuildExport assembles an ErrorExport over records.
func BuildExport(records []ErrorRecord, now time.Time) (ErrorExport, error) {
	hash, err := ExportHash(records)
	if err != nil {
		return ErrorExport{}, err
	}
	out := make([]ErrorRecord, len(records))
	copy(out, records)
	return ErrorExport{
		Version:    ExportVersion,
		Count:      len(out),
		Records:    out,
		Hash:       hash,
		ExportedAt: now,
	}, nil
}

// ExportHash returns the content hash of records, ignoring timestamps.
func ExportHash(records []ErrorRecord) (string, error) {
	normalized := make(ir.Array, 0, len(records))
	for _, rec := range records {
		obj := ir.Object{
			"phase":          ir.String(rec.Phase),
			"classification": ir.String(string(rec.Classification)),
			"message":        ir.String(rec.Message),
			"detail":         ir.String(rec.Detail),
			"attempt":        ir.Int(rec.Attempt),
			"token":          ir.String(rec.Token),
		}
		if len(rec.Context) > 0 {
			ctx := make(ir.Object, len(rec.Context))
			for k, v := range rec.Context {
				ctx[k] = ir.String(v)
			}
			obj["context"] = ctx
		}
		normalized = append(normalized, obj)
	}
	doc := ir.Object{
		"version": ir.Int(ExportVersion),
		"records": normalized,
	}
	return ir.Digest(ir.DomainErrorExport, doc)
}
