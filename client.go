package sestemplates

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/lattiq/sestemplates/internal/core"
	"github.com/lattiq/sestemplates/internal/providers"
)

// Type aliases to re-export core types for the public API.
type (
	Provider         = core.Provider
	ProviderFactory  = providers.Factory
	Credentials      = core.Credentials
	Template         = core.Template
	TemplateMetadata = core.TemplateMetadata
	TemplateList     = core.TemplateList
	ListParams       = core.ListParams
	TemplatedEmail   = core.TemplatedEmail
	SendResult       = core.SendResult
	ValidationError  = core.ValidationError
	ProviderError    = core.ProviderError
)

// DefaultListMaxItems is the list page size used when a request names none.
const DefaultListMaxItems = 5000

// ListTemplatesRequest selects one page of template metadata.
type ListTemplatesRequest struct {
	Region    string
	MaxItems  int
	NextToken string
}

// TemplateRequest carries the fields of a create or update.
type TemplateRequest struct {
	Name    string
	Subject string
	Text    string
	HTML    string
	Region  string
}

// SendTemplateRequest sends one email rendered from a stored template.
type SendTemplateRequest struct {
	Template string
	Source   string
	To       string
	// TemplateData is a JSON object of replacement values, forwarded as is.
	TemplateData string
	Region       string
}

// DuplicateTemplateRequest copies SourceName to Name within one region.
type DuplicateTemplateRequest struct {
	SourceName string
	Name       string
	Region     string
}

// TemplateDetails is a template together with the placeholders it uses.
type TemplateDetails struct {
	Template
	DynamicFields []string `json:"dynamic_fields"`
}

// SendTemplateResult is returned by a successful send.
type SendTemplateResult struct {
	MessageID string `json:"message_id"`
}

// Region is one entry of the region menu.
type Region struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var regions = []Region{
	{Value: "us-east-1", Label: "US East (N. Virginia) us-east-1"},
	{Value: "us-east-2", Label: "US East (Ohio) us-east-2"},
	{Value: "us-west-2", Label: "US West (Oregon) us-west-2"},
	{Value: "ap-south-1", Label: "Asia Pacific (Mumbai) ap-south-1"},
	{Value: "ap-northeast-2", Label: "Asia Pacific (Seoul) ap-northeast-2"},
	{Value: "ap-southeast-1", Label: "Asia Pacific (Singapore) ap-southeast-1"},
	{Value: "ap-southeast-2", Label: "Asia Pacific (Sydney) ap-southeast-2"},
	{Value: "ap-northeast-1", Label: "Asia Pacific (Tokyo) ap-northeast-1"},
	{Value: "eu-central-1", Label: "Europe (Frankfurt) eu-central-1"},
	{Value: "eu-west-1", Label: "Europe (Ireland) eu-west-1"},
	{Value: "eu-west-2", Label: "Europe (London) eu-west-2"},
}

// Regions returns the region menu offered to callers. Requests are not
// restricted to it.
func Regions() []Region {
	out := make([]Region, len(regions))
	copy(out, regions)
	return out
}

// Client implements TemplateManager on top of a region-bound provider factory.
// All methods are safe for concurrent use.
type Client struct {
	config  Config
	factory ProviderFactory
	tracer  trace.Tracer
	logger  *zap.Logger
	metrics *Metrics
	mu      sync.RWMutex
	closed  bool
}

// ClientOption configures the dependencies of a Client.
type ClientOption func(*Client)

// WithProviderFactory replaces the SES factory, e.g. with a fake in tests.
func WithProviderFactory(f ProviderFactory) ClientOption {
	return func(c *Client) {
		c.factory = f
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetricsCollector sets the metrics the client records provider calls on.
func WithMetricsCollector(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a new client with the given configuration.
// Credentials are read once here; every operation builds its own
// region-bound provider.
func New(ctx context.Context, config Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := &Client{
		config: config,
		logger: zap.NewNop(),
	}

	if config.Monitoring.Tracing.Enabled {
		client.tracer = otel.Tracer(config.Monitoring.Tracing.ServiceName)
	} else {
		client.tracer = noop.NewTracerProvider().Tracer("")
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.factory == nil {
		factory, err := providers.NewSES(ctx, providers.SESSettings{
			Credentials:      config.Provider.Credentials(),
			Endpoint:         config.Provider.Endpoint,
			ConfigurationSet: config.Provider.ConfigurationSet,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create provider factory: %w", err)
		}
		client.factory = factory
	}

	return client, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.config
}

// ListTemplates returns one page of template metadata in provider order.
func (c *Client) ListTemplates(ctx context.Context, req ListTemplatesRequest) (*TemplateList, error) {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.ListTemplates")
	defer span.End()

	maxItems := req.MaxItems
	if maxItems == 0 {
		maxItems = c.config.Provider.ListMaxItems
	}
	if maxItems < 0 || maxItems > math.MaxInt32 {
		return nil, c.fail(span, core.NewValidationErrorWithValue("max_items", "max_items must be a positive integer", req.MaxItems))
	}
	span.SetAttributes(attribute.Int("ses.max_items", maxItems))

	var list *TemplateList
	err := c.call(ctx, span, "ListTemplates", req.Region, func(ctx context.Context, p Provider) error {
		var err error
		list, err = p.ListTemplates(ctx, ListParams{MaxItems: maxItems, NextToken: req.NextToken})
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("ses.templates", len(list.Templates)))
	span.SetStatus(codes.Ok, "templates listed")
	return list, nil
}

// GetTemplate fetches a template and derives its dynamic fields.
func (c *Client) GetTemplate(ctx context.Context, name, region string) (*TemplateDetails, error) {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.GetTemplate")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return nil, c.fail(span, core.NewValidationError("template_name", "template_name is required"))
	}
	span.SetAttributes(attribute.String("ses.template", name))

	var tmpl *Template
	err := c.call(ctx, span, "GetTemplate", region, func(ctx context.Context, p Provider) error {
		var err error
		tmpl, err = p.GetTemplate(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	details := &TemplateDetails{
		Template:      *tmpl,
		DynamicFields: TemplateFields(tmpl),
	}
	span.SetAttributes(attribute.Int("ses.dynamic_fields", len(details.DynamicFields)))
	span.SetStatus(codes.Ok, "template fetched")
	return details, nil
}

// CreateTemplate stores a new template. Duplicate names are rejected by the provider.
func (c *Client) CreateTemplate(ctx context.Context, req TemplateRequest) error {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.CreateTemplate")
	defer span.End()

	if err := req.validate(); err != nil {
		return c.fail(span, err)
	}
	span.SetAttributes(attribute.String("ses.template", req.Name))

	err := c.call(ctx, span, "CreateTemplate", req.Region, func(ctx context.Context, p Provider) error {
		return p.CreateTemplate(ctx, req.template())
	})
	if err != nil {
		return err
	}

	span.SetStatus(codes.Ok, "template created")
	return nil
}

// UpdateTemplate overwrites the template named req.Name. There is no rename:
// a different name addresses a different template.
func (c *Client) UpdateTemplate(ctx context.Context, req TemplateRequest) error {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.UpdateTemplate")
	defer span.End()

	if err := req.validate(); err != nil {
		return c.fail(span, err)
	}
	span.SetAttributes(attribute.String("ses.template", req.Name))

	err := c.call(ctx, span, "UpdateTemplate", req.Region, func(ctx context.Context, p Provider) error {
		return p.UpdateTemplate(ctx, req.template())
	})
	if err != nil {
		return err
	}

	span.SetStatus(codes.Ok, "template updated")
	return nil
}

// DeleteTemplate removes a template. Absent names succeed when the provider says so.
func (c *Client) DeleteTemplate(ctx context.Context, name, region string) error {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.DeleteTemplate")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return c.fail(span, core.NewValidationError("template_name", "template_name is required"))
	}
	span.SetAttributes(attribute.String("ses.template", name))

	err := c.call(ctx, span, "DeleteTemplate", region, func(ctx context.Context, p Provider) error {
		return p.DeleteTemplate(ctx, name)
	})
	if err != nil {
		return err
	}

	span.SetStatus(codes.Ok, "template deleted")
	return nil
}

// SendTemplate sends one email. Replacement data is not checked against the
// template's placeholders.
func (c *Client) SendTemplate(ctx context.Context, req SendTemplateRequest) (*SendTemplateResult, error) {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.SendTemplate")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, c.fail(span, err)
	}
	span.SetAttributes(
		attribute.String("ses.template", req.Template),
		attribute.String("ses.source", req.Source),
	)

	var result *SendResult
	err := c.call(ctx, span, "SendTemplatedEmail", req.Region, func(ctx context.Context, p Provider) error {
		var err error
		result, err = p.SendTemplatedEmail(ctx, &TemplatedEmail{
			Template: req.Template,
			Source:   req.Source,
			To:       []string{req.To},
			Data:     req.TemplateData,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("ses.message_id", result.MessageID))
	span.SetStatus(codes.Ok, "email sent")
	return &SendTemplateResult{MessageID: result.MessageID}, nil
}

// DuplicateTemplate copies the parts of an existing template under a new name.
func (c *Client) DuplicateTemplate(ctx context.Context, req DuplicateTemplateRequest) error {
	ctx, span := c.tracer.Start(ctx, "sestemplates.Client.DuplicateTemplate")
	defer span.End()

	if strings.TrimSpace(req.SourceName) == "" {
		return c.fail(span, core.NewValidationError("source_template_name", "source_template_name is required"))
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.fail(span, core.NewValidationError("template_name", "template_name is required"))
	}
	span.SetAttributes(
		attribute.String("ses.source_template", req.SourceName),
		attribute.String("ses.template", req.Name),
	)

	var src *Template
	err := c.call(ctx, span, "GetTemplate", req.Region, func(ctx context.Context, p Provider) error {
		var err error
		src, err = p.GetTemplate(ctx, req.SourceName)
		return err
	})
	if err != nil {
		return err
	}

	copied := &Template{
		Name:     req.Name,
		Subject:  src.Subject,
		TextBody: src.TextBody,
		HTMLBody: src.HTMLBody,
	}
	err = c.call(ctx, span, "CreateTemplate", req.Region, func(ctx context.Context, p Provider) error {
		return p.CreateTemplate(ctx, copied)
	})
	if err != nil {
		return err
	}

	span.SetStatus(codes.Ok, "template duplicated")
	return nil
}

// Close closes the client. Further calls return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// call builds a provider for region and runs fn under the provider timeout.
// The provider call is not cancelled when the caller goes away.
func (c *Client) call(ctx context.Context, span trace.Span, op, region string, fn func(context.Context, Provider) error) error {
	if c.isClosed() {
		return c.fail(span, ErrClientClosed)
	}

	region = c.resolveRegion(region)
	if region == "" {
		return c.fail(span, core.NewValidationError("region", "region is required"))
	}
	span.SetAttributes(attribute.String("ses.region", region))

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Provider.Timeout)
	defer cancel()

	provider, err := c.factory(callCtx, region)
	if err != nil {
		return c.fail(span, err)
	}

	start := time.Now()
	err = fn(callCtx, provider)
	duration := time.Since(start)

	c.metrics.ProviderCall(op, err, duration)
	span.SetAttributes(attribute.Int64("ses.provider.duration_ms", duration.Milliseconds()))

	if err != nil {
		LoggerFrom(ctx, c.logger).Warn("provider call failed",
			zap.String("op", op),
			zap.String("region", region),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return c.fail(span, err)
	}
	return nil
}

func (c *Client) resolveRegion(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		return c.config.Provider.DefaultRegion
	}
	return region
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, ErrorMessage(err))
	return err
}

func (r TemplateRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return core.NewValidationError("template_name", "template_name is required")
	}
	if strings.TrimSpace(r.Subject) == "" {
		return core.NewValidationError("subject_part", "subject_part is required")
	}
	return nil
}

func (r TemplateRequest) template() *Template {
	return &Template{
		Name:     r.Name,
		Subject:  r.Subject,
		TextBody: r.Text,
		HTMLBody: r.HTML,
	}
}

func (r SendTemplateRequest) validate() error {
	if strings.TrimSpace(r.Template) == "" {
		return core.NewValidationError("template_name", "template_name is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return core.NewValidationError("source", "source is required")
	}
	if strings.TrimSpace(r.To) == "" {
		return core.NewValidationError("to_address", "to_address is required")
	}
	return nil
}
