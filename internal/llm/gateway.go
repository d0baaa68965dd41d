package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxTokens caps every completion requested through a Gateway.
const DefaultMaxTokens = 500

// Completer turns a prompt into completion text. It is the only surface the
// quiz session sees of the remote text-generation service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gateway implements Completer over a Provider. Every Complete call issues
// exactly one Generate call; failures come back as *Failure and are never
// retried here.
type Gateway struct {
	provider  Provider
	maxTokens int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
}

var _ Completer = (*Gateway)(nil)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMaxTokens overrides DefaultMaxTokens. Non-positive values are ignored.
func WithMaxTokens(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTimeout bounds each call. Zero means the caller's context decides.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// WithRequestsPerMinute paces outgoing calls. The wait happens before the
// single attempt; it never causes a second request.
func WithRequestsPerMinute(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithGatewayLogger sets the logger used for truncation and failure notes.
func WithGatewayLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway wraps p.
func NewGateway(p Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider:  p,
		maxTokens: DefaultMaxTokens,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete sends prompt as a single user message and returns the text.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", &Failure{Kind: GatewayUnavailable, Err: fmt.Errorf("wait for rate limiter: %w", err)}
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.provider.Generate(ctx, Request{
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		f := &Failure{Kind: KindOf(err), Err: err}
		g.logger.Warn("completion failed",
			zap.String("purpose", PurposeFrom(ctx)),
			zap.Stringer("kind", f.Kind),
			zap.Error(err))
		return "", f
	}
	if resp == nil {
		return "", &Failure{Kind: MalformedResponse, Err: errors.New("nil response")}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", &Failure{
			Kind: MalformedResponse,
			Err:  &ErrInvalidResponse{Body: resp.Text, Err: errors.New("empty completion text")},
		}
	}

	if resp.StopReason == "max_tokens" {
		g.logger.Info("completion truncated at max tokens",
			zap.String("purpose", PurposeFrom(ctx)),
			zap.Int("max_tokens", g.maxTokens))
	}
	return resp.Text, nil
}

// ModelID reports the underlying provider's model.
func (g *Gateway) ModelID() string {
	return g.provider.ModelID()
}
