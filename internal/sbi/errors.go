package sbi

import (
	"fmt"
)

// TransportError reports that a registry call never produced an HTTP
// response: connection failures, timeouts and cancellation.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RegistryError reports a response the registry sent that does not complete
// the operation: an unexpected status or a malformed body.
type RegistryError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
	Reason     string
}

func (e *RegistryError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: registry responded %s: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: registry responded %s", e.Op, e.Status)
}
