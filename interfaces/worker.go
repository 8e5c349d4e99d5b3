package interfaces

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/infrastructure"
	"recruitment/service"
)

// Evaluator runs one AI evaluation by application reference.
type Evaluator interface {
	Evaluate(ctx context.Context, ref string) (*service.EvaluationOutcome, error)
}

// EvaluationConsumer delivers evaluation requests from the broker.
type EvaluationConsumer interface {
	ConsumeEvaluations(ctx context.Context, handler func(context.Context, domain.EvaluationRequestedPayload) error) error
}

// EvaluationWorker bridges the evaluation queue and the reconciler.
type EvaluationWorker struct {
	evaluator Evaluator
	logger    *zap.Logger
}

func NewEvaluationWorker(evaluator Evaluator, logger *zap.Logger) *EvaluationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationWorker{evaluator: evaluator, logger: logger}
}

// Run consumes until ctx is cancelled.
func (w *EvaluationWorker) Run(ctx context.Context, consumer EvaluationConsumer) error {
	w.logger.Info("evaluation worker started")
	defer w.logger.Info("evaluation worker stopped")
	return consumer.ConsumeEvaluations(ctx, w.Handle)
}

// Handle processes one evaluation request. Requests that can never succeed, and
// failed evaluations that were already reverted to SUBMITTED, are dropped; a new
// evaluation must be requested explicitly. Anything else is returned for redelivery.
func (w *EvaluationWorker) Handle(ctx context.Context, req domain.EvaluationRequestedPayload) error {
	log := w.logger.With(zap.String("application_ref", req.ReferenceCode))
	if req.ReferenceCode == "" {
		log.Warn("evaluation request without reference code")
		return infrastructure.ErrDropMessage
	}

	outcome, err := w.evaluator.Evaluate(ctx, req.ReferenceCode)
	switch {
	case err == nil:
		if outcome.Skipped {
			log.Info("evaluation request ignored, application already decided")
			return nil
		}
		log.Info("evaluation completed",
			zap.String("status", string(outcome.Application.Status)),
			zap.Bool("auto_decision", outcome.Application.AutoDecision),
		)
		return nil
	case domain.IsDownstream(err):
		log.Warn("evaluation failed and was reverted", zap.Error(err))
		return fmt.Errorf("%w: %v", infrastructure.ErrDropMessage, err)
	case domain.IsValidation(err), domain.IsNotFound(err), domain.IsInvalidTransition(err):
		log.Warn("evaluation request rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", infrastructure.ErrDropMessage, err)
	default:
		log.Error("evaluation failed, will retry", zap.Error(err))
		return err
	}
}
