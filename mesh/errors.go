package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty point sets, non-finite
	// coordinates and non-positive sizes, thresholds or tolerances.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientCorrespondences is returned when fewer than three point
	// pairs are available to estimate a rigid transform.
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
)

// invalidInputf wraps ErrInvalidInput with a formatted reason.
func invalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Termination describes the terminal state of an ICP run.
type Termination int

const (
	// Converged means the residual change dropped below the tolerance.
	Converged Termination = iota
	// MaxIterationsReached means the iteration budget ran out first.
	MaxIterationsReached
	// InsufficientCorrespondences means an iteration found fewer than three
	// pairs within the correspondence threshold.
	InsufficientCorrespondences
	// Cancelled means the caller's context was done between iterations.
	Cancelled
)

func (t Termination) String() string {
	switch t {
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max_iterations_reached"
	case InsufficientCorrespondences:
		return "insufficient_correspondences"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}

// MarshalText lets Termination serialize as its name in JSON and YAML.
func (t Termination) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (t *Termination) UnmarshalText(text []byte) error {
	switch string(text) {
	case "converged":
		*t = Converged
	case "max_iterations_reached":
		*t = MaxIterationsReached
	case "insufficient_correspondences":
		*t = InsufficientCorrespondences
	case "cancelled":
		*t = Cancelled
	default:
		return fmt.Errorf("unknown termination %q", string(text))
	}
	return nil
}
