package outbound

import "fmt"

// DeliveryError describes a notification request that did not complete with
// a 2xx response. StatusCode is zero for transport failures and timeouts.
type DeliveryError struct {
	Method     string
	URI        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URI, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URI, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
