package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensus/internal/aiconnectors"
	"github.com/consensus/internal/retry"
)

// scriptedSender returns errs in order, then reply.
type scriptedSender struct {
	errs      []error
	reply     string
	callCount int
}

func (s *scriptedSender) Send(ctx context.Context, req aiconnectors.Request) (string, error) {
	defer func() { s.callCount++ }()
	if s.callCount < len(s.errs) {
		return "", s.errs[s.callCount]
	}
	return s.reply, nil
}

func testRetryConfig(maxRetries int) retry.RetryConfig {
	return retry.RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

var testRequest = aiconnectors.Request{Prompt: "2+2?", ModelID: "gpt-4o", ProviderID: "openai"}

func TestResilientSenderPassThroughWithoutRetries(t *testing.T) {
	mock := &scriptedSender{errs: []error{aiconnectors.TransportError("openai", "", nil)}, reply: "4"}
	rs := NewResilientSender(mock, retry.DispatchRetryConfig())

	_, err := rs.Send(context.Background(), testRequest)
	require.Error(t, err)
	assert.Equal(t, 1, mock.callCount)
	assert.EqualValues(t, 0, rs.Retries())
}

func TestResilientSenderRetriesTransientErrors(t *testing.T) {
	mock := &scriptedSender{
		errs: []error{
			aiconnectors.TransportError("openai", "", nil),
			aiconnectors.UpstreamError("openai", 503, "overloaded"),
		},
		reply: "4",
	}
	rs := NewResilientSender(mock, testRetryConfig(3))

	text, err := rs.Send(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "4", text)
	assert.Equal(t, 3, mock.callCount)
	assert.EqualValues(t, 2, rs.Retries())
}

func TestResilientSenderDoesNotRetryPermanentErrors(t *testing.T) {
	mock := &scriptedSender{errs: []error{aiconnectors.UpstreamError("openai", 401, "bad key")}, reply: "4"}
	rs := NewResilientSender(mock, testRetryConfig(3))

	_, err := rs.Send(context.Background(), testRequest)
	require.Error(t, err)
	assert.True(t, aiconnectors.IsKind(err, aiconnectors.KindUpstream))
	assert.Equal(t, 1, mock.callCount)
}

func TestResilientSenderCancelledContextIsTransport(t *testing.T) {
	mock := &scriptedSender{errs: []error{errors.New("connection reset"), errors.New("connection reset")}}
	cfg := testRetryConfig(3)
	cfg.BaseDelay = time.Second
	cfg.MaxDelay = time.Second
	rs := NewResilientSender(mock, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rs.Send(ctx, testRequest)
	require.Error(t, err)
	assert.True(t, aiconnectors.IsKind(err, aiconnectors.KindTransport))
}
