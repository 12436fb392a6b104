package llm

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/retry"
)

// ResilientSender wraps a gateway sender with caller-level retries.
// The gateway itself never retries; this is the only place a prompt may be re-sent.
type ResilientSender struct {
	next        aiconnectors.Sender
	retryConfig retry.RetryConfig

	retries atomic.Int64
}

// NewResilientSender creates a retrying wrapper around next.
func NewResilientSender(next aiconnectors.Sender, config retry.RetryConfig) *ResilientSender {
	if config.ShouldRetry == nil {
		config.ShouldRetry = retry.IsRetryableError
	}
	return &ResilientSender{next: next, retryConfig: config}
}

// Send implements aiconnectors.Sender.
func (rs *ResilientSender) Send(ctx context.Context, req aiconnectors.Request) (string, error) {
	if rs.retryConfig.MaxRetries <= 0 {
		return rs.next.Send(ctx, req)
	}

	logger := log.With().
		Str("provider", req.ProviderID).
		Str("model", req.ModelID).
		Logger()

	var text string
	result := retry.RetryWithBackoffAndReason(ctx, rs.retryConfig, func() (error, string) {
		var err error
		text, err = rs.next.Send(ctx, req)
		if err != nil {
			return err, string(aiconnectors.KindOf(err)) + ": " + err.Error()
		}
		return nil, "success"
	}, &logger)

	if result.Attempts > 1 {
		rs.retries.Add(int64(result.Attempts - 1))
	}
	if !result.Success {
		if aiconnectors.KindOf(result.LastError) == "" && ctx.Err() != nil {
			return "", aiconnectors.TransportError(req.ProviderID, "", result.LastError)
		}
		return "", result.LastError
	}
	return text, nil
}

// Retries reports how many extra attempts have been made since creation.
func (rs *ResilientSender) Retries() int64 {
	return rs.retries.Load()
}
