package ses

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"

	"github.com/lattiq/sestemplates/internal/core"
)

// ProviderName identifies SES in errors, logs and metrics.
const ProviderName = "aws_ses"

// API is the subset of the SES client used by Provider.
type API interface {
	ListTemplates(ctx context.Context, params *ses.ListTemplatesInput, optFns ...func(*ses.Options)) (*ses.ListTemplatesOutput, error)
	GetTemplate(ctx context.Context, params *ses.GetTemplateInput, optFns ...func(*ses.Options)) (*ses.GetTemplateOutput, error)
	CreateTemplate(ctx context.Context, params *ses.CreateTemplateInput, optFns ...func(*ses.Options)) (*ses.CreateTemplateOutput, error)
	UpdateTemplate(ctx context.Context, params *ses.UpdateTemplateInput, optFns ...func(*ses.Options)) (*ses.UpdateTemplateOutput, error)
	DeleteTemplate(ctx context.Context, params *ses.DeleteTemplateInput, optFns ...func(*ses.Options)) (*ses.DeleteTemplateOutput, error)
	SendTemplatedEmail(ctx context.Context, params *ses.SendTemplatedEmailInput, optFns ...func(*ses.Options)) (*ses.SendTemplatedEmailOutput, error)
}

// Provider implements the core.Provider interface for AWS SES.
type Provider struct {
	client   API
	region   string
	settings Settings
}

// Settings configure the SES client built for each region.
type Settings struct {
	// Endpoint overrides the SES endpoint, e.g. for a local emulator.
	Endpoint string

	// ConfigurationSet is attached to every templated send when set.
	ConfigurationSet string
}

// NewProvider creates an SES provider bound to region from a base AWS config.
// The base config carries credentials loaded once at startup; each call
// creates a new client so no handle is shared across requests.
func NewProvider(base aws.Config, region string, settings Settings) (*Provider, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, core.NewValidationError("region", "region is required")
	}

	client := ses.NewFromConfig(base, func(o *ses.Options) {
		o.Region = region
		// One provider call per operation; retries are not performed.
		o.RetryMaxAttempts = 1
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
	})

	return &Provider{client: client, region: region, settings: settings}, nil
}

// NewWithAPI wraps an existing SES API implementation.
// Useful for testing with fakes.
func NewWithAPI(api API, region string, settings Settings) *Provider {
	return &Provider{client: api, region: region, settings: settings}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// Region returns the region the provider is bound to.
func (p *Provider) Region() string {
	return p.region
}

// ListTemplates lists template metadata using a single ListTemplates call.
func (p *Provider) ListTemplates(ctx context.Context, params core.ListParams) (*core.TemplateList, error) {
	input := &ses.ListTemplatesInput{}
	if params.MaxItems > math.MaxInt32 {
		return nil, core.NewValidationErrorWithValue("max_items", "max_items must be a positive integer", params.MaxItems)
	}
	if params.MaxItems > 0 {
		input.MaxItems = aws.Int32(int32(params.MaxItems))
	}
	if params.NextToken != "" {
		input.NextToken = aws.String(params.NextToken)
	}

	output, err := p.client.ListTemplates(ctx, input)
	if err != nil {
		return nil, providerError("ListTemplates", err)
	}

	list := &core.TemplateList{
		Templates: make([]core.TemplateMetadata, 0, len(output.TemplatesMetadata)),
		NextToken: aws.ToString(output.NextToken),
	}
	for _, md := range output.TemplatesMetadata {
		list.Templates = append(list.Templates, core.TemplateMetadata{
			Name:      aws.ToString(md.Name),
			CreatedAt: md.CreatedTimestamp,
		})
	}

	return list, nil
}

// GetTemplate fetches a single template by name.
func (p *Provider) GetTemplate(ctx context.Context, name string) (*core.Template, error) {
	output, err := p.client.GetTemplate(ctx, &ses.GetTemplateInput{
		TemplateName: aws.String(name),
	})
	if err != nil {
		return nil, providerError("GetTemplate", err)
	}
	if output.Template == nil {
		return nil, core.NewProviderError(ProviderName, "GetTemplate", "", "template "+name+" returned no content", nil)
	}

	return &core.Template{
		Name:     aws.ToString(output.Template.TemplateName),
		Subject:  aws.ToString(output.Template.SubjectPart),
		TextBody: aws.ToString(output.Template.TextPart),
		HTMLBody: aws.ToString(output.Template.HtmlPart),
	}, nil
}

// CreateTemplate creates a new template.
func (p *Provider) CreateTemplate(ctx context.Context, tmpl *core.Template) error {
	_, err := p.client.CreateTemplate(ctx, &ses.CreateTemplateInput{
		Template: toSESTemplate(tmpl),
	})
	if err != nil {
		return providerError("CreateTemplate", err)
	}
	return nil
}

// UpdateTemplate overwrites an existing template.
func (p *Provider) UpdateTemplate(ctx context.Context, tmpl *core.Template) error {
	_, err := p.client.UpdateTemplate(ctx, &ses.UpdateTemplateInput{
		Template: toSESTemplate(tmpl),
	})
	if err != nil {
		return providerError("UpdateTemplate", err)
	}
	return nil
}

// DeleteTemplate removes a template. SES reports success for absent names.
func (p *Provider) DeleteTemplate(ctx context.Context, name string) error {
	_, err := p.client.DeleteTemplate(ctx, &ses.DeleteTemplateInput{
		TemplateName: aws.String(name),
	})
	if err != nil {
		return providerError("DeleteTemplate", err)
	}
	return nil
}

// SendTemplatedEmail sends one email rendered from a stored template.
func (p *Provider) SendTemplatedEmail(ctx context.Context, msg *core.TemplatedEmail) (*core.SendResult, error) {
	input := &ses.SendTemplatedEmailInput{
		Source:   aws.String(msg.Source),
		Template: aws.String(msg.Template),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		TemplateData: aws.String(msg.Data),
	}

	if p.settings.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(p.settings.ConfigurationSet)
	}

	output, err := p.client.SendTemplatedEmail(ctx, input)
	if err != nil {
		return nil, providerError("SendTemplatedEmail", err)
	}

	return &core.SendResult{
		MessageID: aws.ToString(output.MessageId),
		Provider:  p.Name(),
		Timestamp: time.Now(),
	}, nil
}

func toSESTemplate(tmpl *core.Template) *types.Template {
	return &types.Template{
		TemplateName: aws.String(tmpl.Name),
		SubjectPart:  aws.String(tmpl.Subject),
		TextPart:     aws.String(tmpl.TextBody),
		HtmlPart:     aws.String(tmpl.HTMLBody),
	}
}

// providerError maps an SDK error to a ProviderError, keeping the
// provider's message verbatim.
func providerError(op string, err error) *core.ProviderError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.ErrorMessage()
		if msg == "" {
			msg = apiErr.Error()
		}
		return core.NewProviderError(ProviderName, op, apiErr.ErrorCode(), msg, err)
	}
	return core.NewProviderError(ProviderName, op, "", err.Error(), err)
}
