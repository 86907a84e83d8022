// Package aws implements the AWS side of vacuum: listing, describing and
// deleting ECS task definitions and Lambda function versions.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

// Plugin wraps the AWS clients used by every sweep.
type Plugin struct {
	region string

	// AWS clients (interfaces for testability)
	ecsClient    ECSAPI
	lambdaClient LambdaAPI
}

// Config holds AWS plugin configuration.
type Config struct {
	Region      string
	Profile     string
	MaxAttempts int
}

// New creates a new AWS plugin from the default credential chain.
// A profile selects a shared-config (including SSO) profile.
func New(ctx context.Context, cfg Config) (*Plugin, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Plugin{
		region:       cfg.Region,
		ecsClient:    ecs.NewFromConfig(awsCfg),
		lambdaClient: lambda.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClients creates a plugin around existing clients.
func NewWithClients(region string, ecsClient ECSAPI, lambdaClient LambdaAPI) *Plugin {
	return &Plugin{
		region:       region,
		ecsClient:    ecsClient,
		lambdaClient: lambdaClient,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "aws"
}

// Region returns the region the clients are bound to.
func (p *Plugin) Region() string {
	return p.region
}
