package pipeline

import "maps"

// Kind tags the result of one phase invocation.
type Kind int

const (
	// KindOK means the phase completed and the sequence continues.
	KindOK Kind = iota
	// KindAbort is an expected early exit. The item is returned as-is.
	KindAbort
	// KindRecoverable is a transient failure, eligible for retry.
	KindRecoverable
	// KindFatal is a defect. Never retried.
	KindFatal
	// KindUnknown is an uncategorised failure. Treated as fatal for
	// control flow but tagged distinctly.
	KindUnknown
)

// String returns the lowercase kind name used in tokens and metrics.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindAbort:
		return "abort"
	case KindRecoverable:
		return "recoverable"
	case KindFatal:
		return "fatal"
	case KindUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// Classification is the final outcome of a phase after retries.
type Classification string

const (
	ClassOK                   Classification = "ok"
	ClassAbort                Classification = "abort"
	ClassRecoverable          Classification = "recoverable"
	ClassRecoverableExhausted Classification = "recoverable_exhausted"
	ClassFatal                Classification = "fatal"
	ClassUnknown              Classification = "unknown"
)

// Outcome is the tagged result a Phase returns.
type Outcome struct {
	Kind Kind
	// Item is set by Ok. A nil Item means the phase mutated the input in place.
	Item    *WorkItem
	Message string
	Detail  string
	Context map[string]string
}

// Ok reports success. item may be nil when the phase mutated in place.
func Ok(item *WorkItem) Outcome {
	return Outcome{Kind: KindOK, Item: item}
}

// Abort stops the sequence without treating it as a defect.
func Abort(msg string) Outcome {
	return Outcome{Kind: KindAbort, Message: msg}
}

// Recoverable reports a transient failure.
func Recoverable(msg string) Outcome {
	return Outcome{Kind: KindRecoverable, Message: msg}
}

// Fatal reports a defect.
func Fatal(msg string) Outcome {
	return Outcome{Kind: KindFatal, Message: msg}
}

// Unknown reports an uncategorised failure.
func Unknown(msg string) Outcome {
	return Outcome{Kind: KindUnknown, Message: msg}
}

// WithDetail returns a copy of o carrying detail text.
func (o Outcome) WithDetail(detail string) Outcome {
	o.Detail = detail
	return o
}

// WithContext returns a copy of o with key=value added to its context.
func (o Outcome) WithContext(key, value string) Outcome {
	ctx := make(map[string]string, len(o.Context)+1)
	maps.Copy(ctx, o.Context)
	ctx[key] = value
	o.Context = ctx
	return o
}

// IsOK reports whether the outcome lets the sequence continue.
func (o Outcome) IsOK() bool {
	return o.Kind == KindOK
}
