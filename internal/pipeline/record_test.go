package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(ts time.Time) []ErrorRecord {
	return []ErrorRecord{{
		Phase:          "fetch",
		Classification: ClassRecoverable,
		Message:        "upstream timeout",
		Attempt:        1,
		Timestamp:      ts,
		Token:          Token(ClassRecoverable, "fetch", "upstream timeout"),
	}}
}

func TestExportHash_IgnoresTimestamps(t *testing.T) {
	a, err := BuildExport(sampleRecords(time.Unix(100, 0)), time.Unix(200, 0))
	require.NoError(t, err)
	b, err := BuildExport(sampleRecords(time.Unix(900, 0)), time.Unix(1000, 0))
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
}

func TestExportHash_ChangesWithContent(t *testing.T) {
	recs := sampleRecords(time.Unix(100, 0))
	a, err := ExportHash(recs)
	require.NoError(t, err)

	recs[0].Attempt = 2
	b, err := ExportHash(recs)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestExportHash_Empty(t *testing.T) {
	h, err := ExportHash(nil)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestRedactor(t *testing.T) {
	r, err := NewRedactor([]string{`api_key=\S+`, "", `\d{12}`})
	require.NoError(t, err)

	assert.Equal(t, "failed [REDACTED] acct [REDACTED]", r.Redact("failed api_key=xyz acct 123456789012"))

	var nilRedactor *Redactor
	assert.Equal(t, "unchanged", nilRedactor.Redact("unchanged"))
}

func TestRedactor_InvalidPattern(t *testing.T) {
	_, err := NewRedactor([]string{"("})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile redact pattern")
}

func TestToken(t *testing.T) {
	assert.Equal(t, "fatal:compute:boom", Token(ClassFatal, "compute", "boom"))
}
