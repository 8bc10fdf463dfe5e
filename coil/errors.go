package coil

import "github.com/pkg/errors"

// Error kinds. Every error returned by this package wraps exactly one of
// these; test with errors.Is.
var (
	// ErrValidation means the model cannot be optimized as given: nothing to
	// optimize, nothing to score, or an intersecting start.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration means a value is out of its admissible range or a
	// required setting is missing.
	ErrConfiguration = errors.New("configuration error")
	// ErrStructural means an element lacks the data its variant needs.
	ErrStructural = errors.New("structural error")
)
