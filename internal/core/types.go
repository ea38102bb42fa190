package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider defines the interface for region-bound email template providers.
// A Provider value is built per request by a factory and is not reused.
type Provider interface {
	// ListTemplates returns template metadata in the order the provider returns it.
	ListTemplates(ctx context.Context, params ListParams) (*TemplateList, error)

	// GetTemplate returns the full template stored under name.
	GetTemplate(ctx context.Context, name string) (*Template, error)

	// CreateTemplate stores a new template. The provider rejects duplicate names.
	CreateTemplate(ctx context.Context, tmpl *Template) error

	// UpdateTemplate overwrites an existing template. The provider rejects unknown names.
	UpdateTemplate(ctx context.Context, tmpl *Template) error

	// DeleteTemplate removes a template. Deleting an absent name is not an error.
	DeleteTemplate(ctx context.Context, name string) error

	// SendTemplatedEmail renders a stored template with data and sends one email.
	SendTemplatedEmail(ctx context.Context, msg *TemplatedEmail) (*SendResult, error)

	// Name returns the provider's name for identification and logging.
	Name() string
}

// Credentials are the static long-lived provider credentials read at startup.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IsZero reports whether no access key was configured.
func (c Credentials) IsZero() bool {
	return c.AccessKeyID == ""
}

// Template is a provider-hosted email template.
type Template struct {
	Name      string     `json:"TemplateName"`
	Subject   string     `json:"SubjectPart"`
	TextBody  string     `json:"TextPart"`
	HTMLBody  string     `json:"HtmlPart"`
	CreatedAt *time.Time `json:"CreatedTimestamp,omitempty"`
}

// TemplateMetadata is a single list entry.
type TemplateMetadata struct {
	Name      string     `json:"Name"`
	CreatedAt *time.Time `json:"CreatedTimestamp,omitempty"`
}

// ListParams controls a single list call.
type ListParams struct {
	MaxItems  int
	NextToken string
}

// TemplateList is the result of a single list call.
type TemplateList struct {
	Templates []TemplateMetadata `json:"TemplatesMetadata"`
	NextToken string             `json:"NextToken,omitempty"`
}

// TemplatedEmail is a request to send one email rendered from a stored template.
type TemplatedEmail struct {
	Template string
	Source   string
	To       []string
	// Data is the JSON-encoded replacement map, passed to the provider as is.
	Data string
}

// SendResult contains the result of sending a single email.
type SendResult struct {
	// MessageID is the unique identifier assigned by the provider.
	MessageID string

	// Provider is the name of the provider that sent the email.
	Provider string

	// Timestamp when the email was accepted by the provider.
	Timestamp time.Time
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string

	// Value is the invalid value (optional).
	Value interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProviderError represents a failed provider call.
// Message carries the provider's own message verbatim.
type ProviderError struct {
	// Provider is the name of the provider that generated the error.
	Provider string

	// Op is the provider operation that failed (e.g. "GetTemplate").
	Op string

	// Code is the provider-specific error code, if the provider returned one.
	Code string

	// Message is the error message from the provider.
	Message string

	// Cause is the underlying error that caused this provider error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider %s error in %s [%s]: %s", e.Provider, e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %s error in %s: %s", e.Provider, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *ProviderError) Is(target error) bool {
	pe, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Provider == pe.Provider && e.Code == pe.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithValue creates a new validation error with a value.
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(provider, op, code, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
