package providers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/lattiq/sestemplates/internal/core"
	"github.com/lattiq/sestemplates/internal/providers/ses"
)

// Factory builds a region-bound provider. Every call returns a new value.
type Factory func(ctx context.Context, region string) (core.Provider, error)

// SESSettings configure the SES factory.
type SESSettings struct {
	Credentials      core.Credentials
	Endpoint         string
	ConfigurationSet string
}

// NewSES loads the base AWS configuration once and returns a factory that
// binds a fresh SES client to the requested region on each call.
// Static credentials take precedence over the default credential chain.
func NewSES(ctx context.Context, settings SESSettings) (Factory, error) {
	var loadOpts []func(*config.LoadOptions) error

	if !settings.Credentials.IsZero() {
		if settings.Credentials.SecretAccessKey == "" {
			return nil, core.NewValidationError("secret_access_key", "secret key is required when access key is provided")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				settings.Credentials.AccessKeyID,
				settings.Credentials.SecretAccessKey,
				settings.Credentials.SessionToken,
			),
		))
	}

	base, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, core.NewProviderError(ses.ProviderName, "LoadConfig", "config_error", "failed to load AWS config: "+err.Error(), err)
	}

	return NewSESFromConfig(base, settings), nil
}

// NewSESFromConfig returns a factory over an already loaded AWS config.
func NewSESFromConfig(base aws.Config, settings SESSettings) Factory {
	sesSettings := ses.Settings{
		Endpoint:         settings.Endpoint,
		ConfigurationSet: settings.ConfigurationSet,
	}
	return func(ctx context.Context, region string) (core.Provider, error) {
		p, err := ses.NewProvider(base, region, sesSettings)
		if err != nil {
			return nil, fmt.Errorf("failed to create ses provider for region %q: %w", region, err)
		}
		return p, nil
	}
}
