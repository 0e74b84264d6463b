package errors

import (
	stderrors "errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeModel represents node classification and exchange-document errors
	ErrorTypeModel ErrorType = "model"
	// ErrorTypeCompile represents statement compilation errors
	ErrorTypeCompile ErrorType = "compile"
	// ErrorTypeCollaborator represents completion/embedding service errors
	ErrorTypeCollaborator ErrorType = "collaborator"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeLock represents per-user exclusion errors
	ErrorTypeLock ErrorType = "lock"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Model Errors

// ErrUnrecognizedLabel is returned when a node label is outside the fixed schema
type ErrUnrecognizedLabel struct {
	*BaseError
	Label string
}

func NewUnrecognizedLabel(label string) *ErrUnrecognizedLabel {
	return &ErrUnrecognizedLabel{
		BaseError: NewBaseError(ErrorTypeModel, fmt.Sprintf("unrecognized node label: %q", label), nil),
		Label:     label,
	}
}

// ErrMissingRequiredProperty is returned when a node lacks a required field
type ErrMissingRequiredProperty struct {
	*BaseError
	Label    string
	Property string
}

func NewMissingRequiredProperty(label, property string) *ErrMissingRequiredProperty {
	return &ErrMissingRequiredProperty{
		BaseError: NewBaseError(ErrorTypeModel, fmt.Sprintf("%s node is missing required property %q", label, property), nil),
		Label:     label,
		Property:  property,
	}
}

// ErrInvalidProperty is returned when a property is present but has the wrong type or value
type ErrInvalidProperty struct {
	*BaseError
	Label    string
	Property string
	Reason   string
}

func NewInvalidProperty(label, property, reason string) *ErrInvalidProperty {
	return &ErrInvalidProperty{
		BaseError: NewBaseError(ErrorTypeModel, fmt.Sprintf("%s node has invalid property %q: %s", label, property, reason), nil),
		Label:     label,
		Property:  property,
		Reason:    reason,
	}
}

// ErrMalformedExchangeDocument is returned when a collaborator response is not a GraphData document
type ErrMalformedExchangeDocument struct {
	*BaseError
	Source  string // "extraction" or "merge"
	Excerpt string
}

func NewMalformedExchangeDocument(source, document string, err error) *ErrMalformedExchangeDocument {
	return &ErrMalformedExchangeDocument{
		BaseError: NewBaseError(ErrorTypeModel, fmt.Sprintf("malformed %s document", source), err),
		Source:    source,
		Excerpt:   excerpt(document, 200),
	}
}

// Compile Errors

// ErrMalformedNode is returned when a node in a batch cannot be compiled
type ErrMalformedNode struct {
	*BaseError
	Index   int
	LocalID string
}

func NewMalformedNode(index int, localID string, err error) *ErrMalformedNode {
	return &ErrMalformedNode{
		BaseError: NewBaseError(ErrorTypeCompile, fmt.Sprintf("malformed node %q at index %d", localID, index), err),
		Index:     index,
		LocalID:   localID,
	}
}

// ErrIdentifierResolution is returned when a relationship endpoint has no node in the batch
type ErrIdentifierResolution struct {
	*BaseError
	Index    int
	Endpoint string // "source" or "target"
	LocalID  string
}

func NewIdentifierResolution(index int, endpoint, localID string) *ErrIdentifierResolution {
	return &ErrIdentifierResolution{
		BaseError: NewBaseError(ErrorTypeCompile, fmt.Sprintf("relationship %d: %s %q does not name a node in the batch", index, endpoint, localID), nil),
		Index:     index,
		Endpoint:  endpoint,
		LocalID:   localID,
	}
}

// ErrInvalidRelationship is returned when a relationship type is outside the
// fixed schema, or joins labels the schema does not pair with that type
type ErrInvalidRelationship struct {
	*BaseError
	Index       int
	Type        string
	SourceLabel string // empty when the type itself is unknown
	TargetLabel string
}

func NewInvalidRelationship(index int, relType string) *ErrInvalidRelationship {
	return &ErrInvalidRelationship{
		BaseError: NewBaseError(ErrorTypeCompile, fmt.Sprintf("relationship %d has unsupported type %q", index, relType), nil),
		Index:     index,
		Type:      relType,
	}
}

func NewRelationshipEndpointMismatch(index int, relType, sourceLabel, targetLabel string) *ErrInvalidRelationship {
	return &ErrInvalidRelationship{
		BaseError: NewBaseError(ErrorTypeCompile,
			fmt.Sprintf("relationship %d: %s cannot join %s to %s", index, relType, sourceLabel, targetLabel), nil),
		Index:       index,
		Type:        relType,
		SourceLabel: sourceLabel,
		TargetLabel: targetLabel,
	}
}

// Collaborator Errors

// ErrCollaboratorFailed is returned when the completion or embedding service fails
type ErrCollaboratorFailed struct {
	*BaseError
	Collaborator string // "completion" or "embedding"
	Model        string
}

func NewCollaboratorFailed(collaborator, model string, err error) *ErrCollaboratorFailed {
	return &ErrCollaboratorFailed{
		BaseError:    NewBaseError(ErrorTypeCollaborator, fmt.Sprintf("%s call failed (model %s)", collaborator, model), err),
		Collaborator: collaborator,
		Model:        model,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a read query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrTransactionFailed is returned when a statement batch cannot be committed
type ErrTransactionFailed struct {
	*BaseError
	Statements int
	FailedAt   int // index of the failing statement, -1 for begin/commit failures
}

func NewTransactionFailed(statements, failedAt int, err error) *ErrTransactionFailed {
	return &ErrTransactionFailed{
		BaseError:  NewBaseError(ErrorTypeGraph, fmt.Sprintf("transaction of %d statements failed", statements), err),
		Statements: statements,
		FailedAt:   failedAt,
	}
}

// Lock Errors

// ErrLockNotAcquired is returned when a per-user lock is held elsewhere past the wait budget
type ErrLockNotAcquired struct {
	*BaseError
	Resource string
	Waited   time.Duration
}

func NewLockNotAcquired(resource string, waited time.Duration, err error) *ErrLockNotAcquired {
	return &ErrLockNotAcquired{
		BaseError: NewBaseError(ErrorTypeLock, fmt.Sprintf("lock not acquired: %s (waited %v)", resource, waited), err),
		Resource:  resource,
		Waited:    waited,
	}
}

// Context Errors

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration, err error) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), err),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Helper functions

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		// Typed errors embed *BaseError, so base() is promoted to them
		if typed, ok := err.(interface{ base() *BaseError }); ok && typed.base().Type == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

func (e *BaseError) base() *BaseError { return e }

// IsRetryable checks if a failed build is worth retrying as-is
func IsRetryable(err error) bool {
	// Bad input stays bad on retry
	if IsErrorType(err, ErrorTypeCompile) {
		return false
	}
	var unrecognized *ErrUnrecognizedLabel
	if stderrors.As(err, &unrecognized) {
		return false
	}
	// A malformed LLM response may well parse next time
	return IsErrorType(err, ErrorTypeModel) ||
		IsErrorType(err, ErrorTypeCollaborator) ||
		IsErrorType(err, ErrorTypeGraph) ||
		IsErrorType(err, ErrorTypeLock) ||
		IsErrorType(err, ErrorTypeContext)
}

// excerpt cuts s to at most limit bytes without splitting a rune
func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
