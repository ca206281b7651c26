package schema

import "fmt"

// ValidationError reports an invalid schema construction, such as a
// duplicate attribute or annotation registration. It is raised at schema
// build time, never during request resolution.
type ValidationError struct {
	Operation string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("schema validation: %s", e.Message)
	}
	return fmt.Sprintf("schema validation: operation %q: %s", e.Operation, e.Message)
}
