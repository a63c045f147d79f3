package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/imrishuroy/storefront-checkout/internal/reconcile"
	"go.uber.org/zap"
)

// Reconciler replays one provider notification.
type Reconciler interface {
	Process(ctx context.Context, kind, id string) error
}

// Processor consumes the reconciliation retry queue.
type Processor struct {
	reconciler Reconciler
	log        *zap.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(r Reconciler, log *zap.Logger) *Processor {
	return &Processor{reconciler: r, log: log}
}

// Handle processes an SQS batch. Transient failures are reported back as batch
// item failures so SQS redelivers only those messages; messages that can never
// succeed are logged and dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	log := p.log.With(zap.String("message_id", rec.MessageId))

	var msg reconcile.RetryMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		log.Error("dropping malformed retry message", zap.Error(err), zap.String("body", rec.Body))
		return nil
	}
	if msg.Kind == "" || msg.ID == "" {
		log.Error("dropping retry message without kind or id", zap.String("body", rec.Body))
		return nil
	}
	log = log.With(zap.String("kind", msg.Kind), zap.String("data_id", msg.ID), zap.String("receive_count", rec.Attributes["ApproximateReceiveCount"]))

	err := p.reconciler.Process(ctx, msg.Kind, msg.ID)
	switch {
	case err == nil:
		log.Info("notification reconciled")
		return nil
	case reconcile.IsPermanent(err):
		log.Warn("dropping notification that cannot be applied", zap.Error(err))
		return nil
	default:
		log.Warn("reconcile failed, will retry", zap.Error(err))
		return err
	}
}
