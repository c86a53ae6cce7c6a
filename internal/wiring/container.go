package wiring

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"transcript-aggregator/internal/config"
	"transcript-aggregator/internal/integrations/blobstore"
	"transcript-aggregator/internal/integrations/paramstore"
	"transcript-aggregator/internal/output"
	"transcript-aggregator/internal/repository"
	"transcript-aggregator/internal/usecase"
)

// Container holds the clients built from one resolved configuration.
type Container struct {
	Config   config.Config
	Store    *blobstore.Client
	Recorder usecase.Recorder
	Logger   *slog.Logger
}

// New resolves parameter-store settings, validates cfg and constructs the
// storage and ledger clients. Every failure is a configuration error.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// SSM and DynamoDB live in the account the process runs in; the blob
	// store may be elsewhere and is configured by the connection string.
	base, err := config.Connection{}.AWSConfig(ctx)
	if err != nil {
		return nil, usecase.NewError(usecase.ErrorConfiguration, "aws_config", err)
	}

	if cfg.ParamPrefix != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(base))
		if err != nil {
			return nil, usecase.NewError(usecase.ErrorConfiguration, "ssm_client", err)
		}
		if err := cfg.ResolveParams(ctx, params); err != nil {
			return nil, usecase.NewError(usecase.ErrorConfiguration, "ssm_load_error", err)
		}
	}

	conn, err := cfg.Validate()
	if err != nil {
		return nil, usecase.NewError(usecase.ErrorConfiguration, "invalid_config", err)
	}
	storeCfg, err := conn.AWSConfig(ctx)
	if err != nil {
		return nil, usecase.NewError(usecase.ErrorConfiguration, "storage_aws_config", err)
	}
	store, err := blobstore.New(
		awss3.NewFromConfig(storeCfg, blobstore.WithEndpoint(conn.Endpoint, conn.PathStyle)),
		cfg.ContainerName,
	)
	if err != nil {
		return nil, usecase.NewError(usecase.ErrorConfiguration, "storage_client", err)
	}

	recorder, err := newRecorder(base, cfg.RunTable)
	if err != nil {
		return nil, usecase.NewError(usecase.ErrorConfiguration, "ledger_client", err)
	}

	logger.Info("configuration loaded",
		"container", cfg.ContainerName,
		"connection", conn.String(),
		"run_table", cfg.RunTable,
		"liveness_window", cfg.LivenessWindow,
		"continue_on_error", cfg.ContinueOnError,
	)
	return &Container{Config: cfg, Store: store, Recorder: recorder, Logger: logger}, nil
}

func newRecorder(base aws.Config, table string) (usecase.Recorder, error) {
	if table == "" {
		return nil, nil
	}
	return repository.New(awsdynamodb.NewFromConfig(base), table)
}

// Aggregator builds the bulk aggregator.
func (c *Container) Aggregator() (*usecase.Aggregator, error) {
	return usecase.NewAggregator(c.Store, usecase.AggregatorConfig{
		LivenessWindow:  c.Config.LivenessWindow,
		ContinueOnError: c.Config.ContinueOnError,
		Recorder:        c.Recorder,
		Logger:          c.Logger,
	})
}

// Resolver builds the single-conversation resolver writing to OutputDir.
func (c *Container) Resolver() (*usecase.Resolver, error) {
	sink, err := output.NewFileSink(c.Config.OutputDir)
	if err != nil {
		return nil, err
	}
	return usecase.NewResolver(c.Store, sink, c.Logger)
}
