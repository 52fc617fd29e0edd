package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Transport delivers a payload to the answering service and returns the
// raw response body. Implementations must abort the underlying I/O when
// ctx is done. Failures should be reported as *TransportError.
type Transport interface {
	Post(ctx context.Context, endpoint, token string, payload *Payload) ([]byte, error)
}

var (
	errCancelledByCaller = errors.New("cancelled by caller")
	errRequestTimeout    = errors.New("request timeout elapsed")
)

// requestContext is the state of the single in-flight request.
type requestContext struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	started time.Time
	cfg     Config
}

// Controller owns at most one in-flight request to the answering
// service. It never queues: a send while busy fails with
// ConcurrentRequestError.
type Controller struct {
	transport Transport
	now       func() time.Time

	mu     sync.Mutex
	active *requestContext
}

// NewController creates a controller that sends through transport.
func NewController(transport Transport) *Controller {
	return &Controller{
		transport: transport,
		now:       time.Now,
	}
}

// IsBusy reports whether a request is in flight.
func (c *Controller) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Cancel aborts the in-flight request, if any, and immediately returns
// the controller to idle. The aborted Send returns CancelledError even if
// the service answers afterwards. Calling Cancel while idle does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return
	}
	c.active.cancel(errCancelledByCaller)
	c.active = nil
	log.Debug().Msg("chat: in-flight request cancelled")
}

// Send issues one request for content and waits for the validated
// answer. prior is the transcript before content was added to it.
func (c *Controller) Send(ctx context.Context, cfg Config, userID, conversationID, content string, prior []Turn) (*Answer, error) {
	rc, err := c.begin(ctx, cfg, conversationID)
	if err != nil {
		return nil, err
	}
	return c.dispatch(rc, userID, conversationID, content, prior)
}

// begin moves the controller from idle to sending.
func (c *Controller) begin(ctx context.Context, cfg Config, conversationID string) (*requestContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, &ConcurrentRequestError{ConversationID: conversationID}
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	rc := &requestContext{
		ctx:     reqCtx,
		cancel:  cancel,
		started: c.now(),
		cfg:     cfg.normalized(),
	}
	c.active = rc
	return rc, nil
}

// abandon releases rc without sending anything.
func (c *Controller) abandon(rc *requestContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == rc {
		c.active = nil
	}
	rc.cancel(nil)
}

// settle releases rc and reports why its context ended, if it did.
// Holding the lock makes settlement and Cancel mutually exclusive: a
// cancel that loses the race is a no-op.
func (c *Controller) settle(rc *requestContext, ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == rc {
		c.active = nil
	}
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}

func (c *Controller) dispatch(rc *requestContext, userID, conversationID, content string, prior []Turn) (*Answer, error) {
	defer rc.cancel(nil)

	ctx, stop := context.WithTimeoutCause(rc.ctx, rc.cfg.RequestTimeout, errRequestTimeout)
	defer stop()

	payload := BuildPayload(rc.cfg, userID, conversationID, content, prior)
	logger := log.With().
		Str("conversation_id", conversationID).
		Int("history", len(payload.ConversationHistory)).
		Logger()
	logger.Debug().Str("endpoint", rc.cfg.Endpoint).Msg("chat: sending request")

	var (
		body []byte
		err  error
	)
	// the request may have been cancelled before it was dispatched
	if ctx.Err() == nil {
		body, err = c.transport.Post(ctx, rc.cfg.Endpoint, rc.cfg.AuthToken, payload)
	}
	elapsed := c.now().Sub(rc.started)

	if cause := c.settle(rc, ctx); cause != nil {
		if errors.Is(cause, errRequestTimeout) || errors.Is(cause, context.DeadlineExceeded) {
			logger.Debug().Dur("elapsed", elapsed).Msg("chat: request timed out")
			return nil, &TimeoutError{Timeout: rc.cfg.RequestTimeout}
		}
		logger.Debug().Dur("elapsed", elapsed).Msg("chat: request cancelled")
		return nil, &CancelledError{}
	}

	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", elapsed).Msg("chat: request failed")
		var te *TransportError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, &TransportError{Message: "request failed", Err: err}
	}

	answer, err := ParseAnswer(body)
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", elapsed).Msg("chat: response rejected")
		return nil, err
	}

	logger.Debug().
		Dur("elapsed", elapsed).
		Int("answer_len", len(answer.Text)).
		Int("suggested", len(answer.SuggestedQuestions)).
		Msg("chat: answer received")
	return answer, nil
}
