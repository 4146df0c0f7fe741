package app

import "fmt"

// DomainError is the error shape the HTTP layer renders to clients. Status
// picks the response code, Code is a stable machine-readable tag the mobile
// client switches on, and Details optionally carries field-level context.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// invalidInput flags a request body the inspection validators rejected.
func invalidInput(format string, args ...any) *DomainError {
	return domainError(422, "VALIDATION_ERROR", fmt.Sprintf(format, args...), nil)
}
