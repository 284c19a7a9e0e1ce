package mapping

import "fmt"

// MappingError reports a failure to fetch, read or persist the group mapping.
type MappingError struct {
	Op   string
	Path string
	Err  error
}

func (e *MappingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("document mapping %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("document mapping %s: %v", e.Op, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
