package vault

import "fmt"

// ValidationError reports a rendered note that does not have the expected shape.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid note: %s", e.Reason)
}
