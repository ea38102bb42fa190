package sestemplates

import (
	"context"
)

// Public interfaces for the template service
type (
	// TemplateManager manages provider-hosted email templates.
	// Every method issues its provider calls against the request's region
	// and is safe for concurrent use.
	TemplateManager interface {
		// ListTemplates returns one page of template metadata.
		ListTemplates(ctx context.Context, req ListTemplatesRequest) (*TemplateList, error)

		// GetTemplate returns a template and the placeholders it references.
		GetTemplate(ctx context.Context, name, region string) (*TemplateDetails, error)

		// CreateTemplate stores a new template.
		CreateTemplate(ctx context.Context, req TemplateRequest) error

		// UpdateTemplate overwrites an existing template.
		UpdateTemplate(ctx context.Context, req TemplateRequest) error

		// DeleteTemplate removes a template.
		DeleteTemplate(ctx context.Context, name, region string) error

		// SendTemplate sends one email rendered from a stored template.
		SendTemplate(ctx context.Context, req SendTemplateRequest) (*SendTemplateResult, error)

		// DuplicateTemplate copies an existing template under a new name.
		DuplicateTemplate(ctx context.Context, req DuplicateTemplateRequest) error
	}
)

var _ TemplateManager = (*Client)(nil)
