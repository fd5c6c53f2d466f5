package main

import (
	"context"
	"fmt"

	"rateadjuster/bootstrap"
	"rateadjuster/config"
	"rateadjuster/handlers"
	"rateadjuster/log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

var handler *handlers.LambdaHandler

func init() {
	logger := log.GetInstance()
	logger.Info("Production rate adjuster: cold start")

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("Ignoring LOG_LEVEL", zap.Error(err))
	}

	ctx := context.Background()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		panic(err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		panic(fmt.Errorf("unable to load SDK config: %w", err))
	}

	handler = &handlers.LambdaHandler{
		Processor: app.Processor,
		Fetcher:   &handlers.S3Fetcher{Client: s3.NewFromConfig(awsCfg)},
		Logger:    logger,
	}
}

func main() {
	lambda.Start(handler.HandleS3Event)
}
