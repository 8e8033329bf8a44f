package llm

import (
	"errors"
	"fmt"
)

// Error kinds.
const (
	// KindHTTP is a terminal upstream failure (non-2xx other than 429).
	KindHTTP = "http"
	// KindInvalidOutput means retries were exhausted without the model
	// producing parseable, schema-valid JSON.
	KindInvalidOutput = "invalid_output"
	// KindNetwork is a terminal transport failure.
	KindNetwork = "network"
)

// Error is a tagged error carrying upstream status and body.
type Error struct {
	Kind   string
	Status int
	Body   string
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidOutput:
		return fmt.Sprintf("llm: invalid output: %s", e.Detail)
	case KindNetwork:
		return fmt.Sprintf("llm: network failure: %s", e.Detail)
	default:
		return fmt.Sprintf("llm: HTTP %d: %s", e.Status, truncate(e.Body, 200))
	}
}

// IsInvalidOutput reports whether err is a terminal invalid-output error.
func IsInvalidOutput(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == KindInvalidOutput
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
