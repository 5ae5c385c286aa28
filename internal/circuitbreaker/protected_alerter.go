package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/worker"
)

// ProtectedAlerter wraps an alert channel with a CircuitBreaker. When
// the downstream (SES, SNS, a chat webhook) starts failing, the circuit
// opens and the audit worker gets an immediate error instead of a
// timeout per alert.
type ProtectedAlerter struct {
	alerter worker.Alerter
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedAlerter wraps an alerter with circuit breaker protection.
func NewProtectedAlerter(alerter worker.Alerter, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedAlerter {
	return &ProtectedAlerter{
		alerter: alerter,
		breaker: breaker,
		logger:  logger,
	}
}

// Notify attempts delivery through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately.
func (p *ProtectedAlerter) Notify(ctx context.Context, alert *worker.Alert) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected alert, failing fast",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("notification_id", alert.NotificationID.String()),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s channel unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.alerter.Notify(ctx, alert)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Name delegates to the underlying channel.
func (p *ProtectedAlerter) Name() string {
	return p.alerter.Name()
}

// Breaker returns the underlying circuit breaker for monitoring.
func (p *ProtectedAlerter) Breaker() *CircuitBreaker {
	return p.breaker
}
