package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/storefront-checkout/internal/app"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/config"
	"github.com/imrishuroy/storefront-checkout/internal/logger"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}
	if cfg.UseSecrets {
		if err := cfg.ApplySecrets(ctx, aws.NewSecretsClient(clients.SecretsManager)); err != nil {
			zl.Fatal("failed to load secrets", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}

	a, err := app.New(ctx, cfg, clients, zl)
	if err != nil {
		zl.Fatal("failed to build services", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	p := NewProcessor(a.Reconciler, zl.Named("worker"))

	// RUN_LOCAL=true replays a single message from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"kind":"payment","id":"1","attempt":1}`
		}
		resp, _ := p.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			zl.Fatal("local message failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
