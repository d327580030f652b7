package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for router operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodePeerMismatch    ErrorCode = 1001
	ErrCodeSessionNotFound ErrorCode = 1002

	// Server errors (5xx equivalent)
	ErrCodeInternal           ErrorCode = 2000
	ErrCodeDuplicateSession   ErrorCode = 2001
	ErrCodeShardUnreachable   ErrorCode = 2002
	ErrCodeConfirmationFailed ErrorCode = 2003
)

// RouterError represents a structured error with code and context
type RouterError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *RouterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *RouterError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts RouterError to gRPC status
func (e *RouterError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *RouterError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument:
		return codes.InvalidArgument
	case ErrCodePeerMismatch:
		return codes.FailedPrecondition
	case ErrCodeSessionNotFound:
		return codes.NotFound
	case ErrCodeShardUnreachable:
		return codes.Unavailable
	case ErrCodeConfirmationFailed:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// NewRouterError creates a new RouterError
func NewRouterError(code ErrorCode, message string, cause error) *RouterError {
	return &RouterError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *RouterError) WithDetail(key string, value interface{}) *RouterError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *RouterError {
	return NewRouterError(ErrCodeInvalidArgument, message, cause)
}

func PeerMismatch(bound, observed string) *RouterError {
	return NewRouterError(ErrCodePeerMismatch,
		fmt.Sprintf("remotes don't match: bound [%s] observed [%s]", bound, observed), nil).
		WithDetail("bound_peer", bound).
		WithDetail("observed_peer", observed)
}

func SessionNotFound(connID string) *RouterError {
	return NewRouterError(ErrCodeSessionNotFound,
		fmt.Sprintf("no session exists for connection %s", connID), nil).
		WithDetail("conn_id", connID)
}

func DuplicateSession(connID string) *RouterError {
	return NewRouterError(ErrCodeDuplicateSession,
		fmt.Sprintf("a session already exists for connection %s", connID), nil).
		WithDetail("conn_id", connID)
}

func ShardUnreachable(shardID string, cause error) *RouterError {
	return NewRouterError(ErrCodeShardUnreachable,
		fmt.Sprintf("could not reach shard %s", shardID), cause).
		WithDetail("shard_id", shardID)
}

func ConfirmationFailed(shardID string, cause error) *RouterError {
	return NewRouterError(ErrCodeConfirmationFailed,
		fmt.Sprintf("could not enforce write concern on %s", shardID), cause).
		WithDetail("shard_id", shardID)
}

func InternalError(message string, cause error) *RouterError {
	return NewRouterError(ErrCodeInternal, message, cause)
}

// IsRouterError checks if an error is a RouterError
func IsRouterError(err error) bool {
	_, ok := err.(*RouterError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if re, ok := err.(*RouterError); ok {
		return re.Code
	}
	return ErrCodeInternal
}
