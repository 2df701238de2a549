// Package rpc submits signed actions to an actor and waits for correlated replies.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/ao-chat/internal/correlator"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/signer"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rudransh-shrivastava/ao-chat/internal/rpc"

type Submitter interface {
	Submit(ctx context.Context, env protocol.SignedEnvelope, target string) (protocol.Ack, error)
}

type Options struct {
	Config     Config
	Signer     signer.Signer
	Submitter  Submitter
	Correlator *correlator.Correlator
	Logger     *logrus.Logger

	Sleep    func(ctx context.Context, d time.Duration) error
	Now      func() time.Time
	NewToken func() string
}

type Client struct {
	config     Config
	replies    map[protocol.Action]bool
	signer     signer.Signer
	submitter  Submitter
	correlator *correlator.Correlator
	codec      *protocol.Codec
	logger     *logrus.Logger
	tracer     trace.Tracer

	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	newToken func() string
}

func New(opts Options) (*Client, error) {
	if opts.Submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	c := &Client{
		config:     opts.Config,
		replies:    make(map[protocol.Action]bool, len(opts.Config.ReplyActions)),
		signer:     opts.Signer,
		submitter:  opts.Submitter,
		correlator: opts.Correlator,
		codec:      protocol.NewCodec(),
		logger:     log,
		tracer:     otel.Tracer(tracerName),
		sleep:      opts.Sleep,
		now:        opts.Now,
		newToken:   opts.NewToken,
	}
	for _, a := range opts.Config.ReplyActions {
		c.replies[a] = true
	}

	if c.signer == nil {
		c.signer = signer.Unavailable{}
	}
	if c.correlator == nil {
		c.correlator = correlator.New(log)
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newToken == nil {
		c.newToken = uuid.NewString
	}
	return c, nil
}

func (c *Client) Correlator() *correlator.Correlator { return c.correlator }

func (c *Client) Address() string { return c.signer.Address() }

// NeedsReply reports whether action waits for a reply unless overridden per call.
func (c *Client) NeedsReply(action protocol.Action) bool {
	return c.replies[action]
}

// Call submits action to target and returns its outcome. Failures are
// reported in the returned Result; Call never panics on them.
func (c *Client) Call(ctx context.Context, action protocol.Action, params map[string]any, target string, opts ...CallOption) protocol.Result {
	o := callOptions{maxRetries: c.config.MaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	needsReply := c.NeedsReply(action)
	if o.needsReply != nil {
		needsReply = *o.needsReply
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}
	if target == "" {
		target = c.config.Process
	}
	token := o.token
	if token == "" {
		token = c.newToken()
	}

	ctx, span := c.tracer.Start(ctx, "rpc.Call", trace.WithAttributes(
		attribute.String("ao.action", action.String()),
		attribute.String("ao.target", target),
		attribute.String("ao.reference", token),
		attribute.Bool("ao.needs_reply", needsReply),
	))
	defer span.End()

	res := c.call(ctx, protocol.Request{
		Action:   action,
		Params:   params,
		Token:    token,
		Target:   target,
		IssuedAt: c.now(),
	}, needsReply, o.maxRetries)

	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// Cancel abandons the pending wait for token, if any.
func (c *Client) Cancel(token string) bool {
	return c.correlator.Cancel(token)
}

func (c *Client) call(ctx context.Context, req protocol.Request, needsReply bool, maxRetries int) protocol.Result {
	log := c.logger.WithFields(logrus.Fields{"action": req.Action, "token": req.Token})

	_, payload, err := c.codec.EncodeMessage(req)
	if err != nil {
		return protocol.Failure(err)
	}

	env, err := c.signer.Sign(ctx, payload)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return protocol.Failure(protocol.WrapError(protocol.ErrCancelled, err))
		}
		log.WithError(err).Error("Signing failed")
		return protocol.Failure(protocol.WrapError(protocol.ErrSignerUnavailable, err))
	}

	var last error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			delay := c.config.Backoff(attempt - 1)
			log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Debug("Retrying call")
			if err := c.sleep(ctx, delay); err != nil {
				last = protocol.WrapError(protocol.ErrCancelled, err)
				break
			}
		}

		trace.SpanFromContext(ctx).AddEvent("attempt", trace.WithAttributes(attribute.Int("ao.attempt", attempt)))

		res, err := c.attempt(ctx, req, env, needsReply)
		if err == nil {
			return res
		}

		last = err
		log.WithField("attempt", attempt).WithError(err).Warn("Call attempt failed")
		if !retryable(err) {
			break
		}
	}

	return protocol.Failure(last)
}

func (c *Client) attempt(ctx context.Context, req protocol.Request, env protocol.SignedEnvelope, needsReply bool) (protocol.Result, error) {
	if !needsReply {
		ack, err := c.submit(ctx, env, req.Target)
		if err != nil {
			return protocol.Result{}, err
		}
		data, err := json.Marshal(ack)
		if err != nil {
			return protocol.Result{}, protocol.WrapError(protocol.ErrDecodeFailure, err)
		}
		return protocol.Result{Success: true, Data: data}, nil
	}

	done := make(chan protocol.Result, 1)
	h, err := c.correlator.RegisterWait(req.Token, req.Action.ResultAction(), c.now().Add(c.config.ReplyTimeout), func(r protocol.Result) {
		done <- r
	})
	if err != nil {
		return protocol.Result{}, err
	}

	if _, err := c.submit(ctx, env, req.Target); err != nil {
		c.correlator.Release(h)
		return protocol.Result{}, err
	}

	timer := time.NewTimer(c.config.ReplyTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return settle(res)
	case <-timer.C:
		c.correlator.Expire(h)
		return settle(<-done)
	case <-ctx.Done():
		if c.correlator.Release(h) {
			return protocol.Result{}, protocol.WrapError(protocol.ErrCancelled, ctx.Err())
		}
		return settle(<-done)
	}
}

func (c *Client) submit(ctx context.Context, env protocol.SignedEnvelope, target string) (protocol.Ack, error) {
	ack, err := c.submitter.Submit(ctx, env, target)
	if err == nil {
		return ack, nil
	}
	if ctx.Err() != nil {
		return protocol.Ack{}, protocol.WrapError(protocol.ErrCancelled, ctx.Err())
	}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return protocol.Ack{}, perr
	}
	return protocol.Ack{}, protocol.WrapError(protocol.ErrSubmissionFailure, err)
}

// settle turns a delivered result into the attempt's outcome. Only a timeout
// is reported as an error so that the call loop can retry it.
func settle(res protocol.Result) (protocol.Result, error) {
	if !res.Success && res.Code == protocol.ErrTimeout {
		return protocol.Result{}, res.Err()
	}
	return res, nil
}

func retryable(err error) bool {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Code.Retryable()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
