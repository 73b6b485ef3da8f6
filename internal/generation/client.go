// Package generation wraps the chat providers with the bounded retry policy
// every brainstorming prompt goes through.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nidhogg/brainstorm/internal/provider"
	"go.uber.org/zap"
)

// DefaultAttempts is the number of tries before a call is given up.
const DefaultAttempts = 3

// ErrGenerationExhausted matches every *ExhaustedError.
var ErrGenerationExhausted = errors.New("generation exhausted")

var errBlankResponse = errors.New("blank response")

// ExhaustedError reports that all attempts failed. It unwraps to the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrGenerationExhausted }

// Chatter is the part of a provider the client needs. provider.Router implements it.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Options tune one completion.
type Options struct {
	Temperature float64
	MaxTokens   int
	// System is an optional system message sent before the prompt.
	System string
}

// Config holds the model and retry settings.
type Config struct {
	Model    string `json:"model"`
	Attempts int    `json:"attempts"`
}

// Client issues completions with retry.
type Client struct {
	chat     Chatter
	model    string
	attempts int
	timer    backoff.Timer
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimer replaces the timer used for backoff waits.
func WithTimer(t backoff.Timer) Option {
	return func(c *Client) { c.timer = t }
}

// New creates a client over chat.
func New(chat Chatter, cfg Config, logger *zap.Logger, opts ...Option) *Client {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	c := &Client{
		chat:     chat,
		model:    cfg.Model,
		attempts: attempts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	var msgs []provider.Message
	if opts.System != "" {
		msgs = append(msgs, provider.System(opts.System))
	}
	msgs = append(msgs, provider.User(prompt))
	return c.CompleteMessages(ctx, msgs, opts)
}

// CompleteMessages sends msgs and returns the trimmed response text. Every
// failure, including a blank response, is retried after 2^attempt+1 seconds.
// Waits are not interrupted by ctx; a cancelled ctx stops further attempts.
func (c *Client) CompleteMessages(ctx context.Context, msgs []provider.Message, opts Options) (string, error) {
	req := &provider.ChatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var text string
	attempt := 0
	op := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.chat.Chat(ctx, req)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(resp.Content)
		if text == "" {
			return errBlankResponse
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	b := backoff.WithMaxRetries(&Schedule{}, uint64(c.attempts-1))
	err := backoff.RetryNotifyWithTimer(op, b, notify, c.timer)
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return "", fmt.Errorf("generation cancelled: %w", err)
	}
	c.logger.Error("generation exhausted", zap.Int("attempts", attempt), zap.Error(err))
	return "", &ExhaustedError{Attempts: attempt, Err: err}
}

// Schedule is the deterministic backoff: 2^n+1 seconds before retry n+1.
type Schedule struct {
	n int
}

var _ backoff.BackOff = (*Schedule)(nil)

// Delay returns the wait after the zero-indexed failed attempt n.
func Delay(n int) time.Duration {
	return time.Duration(1<<n+1) * time.Second
}

func (s *Schedule) NextBackOff() time.Duration {
	d := Delay(s.n)
	s.n++
	return d
}

func (s *Schedule) Reset() { s.n = 0 }
