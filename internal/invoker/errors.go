package invoker

import "fmt"

// Backend failures are split into the kinds the HTTP layer maps to distinct
// user-facing messages. Each carries the backend's machine-readable code and
// human-readable message.

// AccessDeniedError means the caller lacks access to the requested model.
type AccessDeniedError struct {
	Code    string
	Message string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("backend access denied (%s): %s", e.Code, e.Message)
}

// ThrottledError means the backend is rate limiting the caller.
type ThrottledError struct {
	Code    string
	Message string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("backend throttled (%s): %s", e.Code, e.Message)
}

// ValidationError means the backend rejected the payload shape.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("backend rejected request (%s): %s", e.Code, e.Message)
}

// BackendError is any other failure reported by the backend.
type BackendError struct {
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (%s): %s", e.Code, e.Message)
}
