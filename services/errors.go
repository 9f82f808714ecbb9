package services

import "fmt"

// ServiceError is a domain error carrying a stable code that handlers expose to clients
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Is matches any ServiceError with the same code, so callers can compare against the sentinels below
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

// Error codes
const (
	CodeDeliveryNotFound   = "DELIVERY_NOT_FOUND"
	CodeAgentNotFound      = "AGENT_NOT_FOUND"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeAgentRequired      = "AGENT_REQUIRED"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeUnsupportedStatus  = "UNSUPPORTED_STATUS"
	CodeInvalidCoordinates = "INVALID_COORDINATES"
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeInvalidQuery       = "INVALID_QUERY"
)

var (
	ErrDeliveryNotFound   = &ServiceError{Code: CodeDeliveryNotFound, Message: "Delivery not found"}
	ErrAgentNotFound      = &ServiceError{Code: CodeAgentNotFound, Message: "Agent not found"}
	ErrInvalidTransition  = &ServiceError{Code: CodeInvalidTransition, Message: "Status transition is not allowed"}
	ErrAgentRequired      = &ServiceError{Code: CodeAgentRequired, Message: "Delivery must be assigned to an agent first"}
	ErrInvalidCoordinates = &ServiceError{Code: CodeInvalidCoordinates, Message: "Latitude must be within -90..90 and longitude within -180..180"}
	ErrEmptyMessage       = &ServiceError{Code: CodeEmptyMessage, Message: "Message content cannot be empty"}
)

func newServiceError(code, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}
