package serverclient

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	statusErrorTemplateConstant             = "server responded with status %d"
	statusErrorCodeTemplateConstant         = " (%s)"
	statusErrorDetailTemplateConstant       = ": %s"
)

// OperationName describes a named server API workflow supported by the client.
type OperationName string

// Operation names reported in errors and logs.
const (
	OperationSignIn        OperationName = OperationName("SignIn")
	OperationSignOut       OperationName = OperationName("SignOut")
	OperationListObjects   OperationName = OperationName("ListObjects")
	OperationListProjects  OperationName = OperationName("ListProjects")
	OperationListViews     OperationName = OperationName("ListWorkbookViews")
	OperationDownload      OperationName = OperationName("Download")
	OperationPublish       OperationName = OperationName("Publish")
	operationNameUndefined OperationName = OperationName("Request")
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps transport and server failures for an operation.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// StatusError reports a non-success HTTP status returned by the server.
type StatusError struct {
	StatusCode int
	Code       string
	Summary    string
	Detail     string
}

// Error describes the server response.
func (statusError StatusError) Error() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(statusErrorTemplateConstant, statusError.StatusCode))
	if len(statusError.Code) > 0 {
		builder.WriteString(fmt.Sprintf(statusErrorCodeTemplateConstant, statusError.Code))
	}
	message := strings.TrimSpace(statusError.Summary + " " + statusError.Detail)
	if len(message) > 0 {
		builder.WriteString(fmt.Sprintf(statusErrorDetailTemplateConstant, message))
	}
	return builder.String()
}

// Retryable reports whether the status indicates throttling or a transient outage.
func (statusError StatusError) Retryable() bool {
	switch statusError.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
