package domain

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeNode       ErrorType = "node"
	ErrorTypeStage      ErrorType = "stage"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error is the structured error carried across adapter boundaries.
type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
}

func (e Error) Error() string {
	return e.Message
}

func NewNodeError(nodeID, message string, details map[string]interface{}) Error {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["node_id"] = nodeID
	return Error{
		Type:    ErrorTypeNode,
		Message: fmt.Sprintf("node %s: %s", nodeID, message),
		Details: details,
	}
}

func NewNotFoundError(kind, id string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]interface{}{"kind": kind, "id": id},
	}
}

var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyPipeline = errors.New("pipeline has no nodes")
	ErrCancelled     = errors.New("execution cancelled")
)

func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var de Error
	return errors.As(err, &de) && de.Type == ErrorTypeNotFound
}

func IsCancelled(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var de Error
	return errors.As(err, &de) && de.Type == ErrorTypeCancelled
}
