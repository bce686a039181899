package ir

// Version constants for hashed content.
const (
	// CanonicalVersion identifies the canonical JSON profile used for digests.
	CanonicalVersion = "1"

	// EngineVersion is the chainshadow engine version stamped into journal rows.
	EngineVersion = "0.3.0"
)
