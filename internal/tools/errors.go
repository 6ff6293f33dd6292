package tools

import (
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
)

// ToolError is a failure that the dispatcher reports as a JSON-RPC error
// response with Code.
type ToolError struct {
	Code    int64
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func NewToolNotFoundError(name string) *ToolError {
	return &ToolError{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: fmt.Sprintf("Tool not found: %s", name),
	}
}

func NewToolExecutionError(name string, err error) *ToolError {
	return &ToolError{
		Code:    jsonrpc2.CodeInternalError,
		Message: fmt.Sprintf("Error executing tool %s: %v", name, err),
		Err:     err,
	}
}

func NewInvalidParamsError(name string, err error) *ToolError {
	return &ToolError{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: fmt.Sprintf("Invalid arguments for %s: %v", name, err),
		Err:     err,
	}
}
