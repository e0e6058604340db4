package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Receiver runs a delivery through endpoint resolution, signature check,
// rate check and routing, stopping at the first failure.
type Receiver struct {
	verifier        *Verifier
	limiter         Limiter
	router          *Router
	signatureHeader string
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithLimiter enables per-client rate limiting.
func WithLimiter(l Limiter) ReceiverOption {
	return func(r *Receiver) {
		r.limiter = l
	}
}

// WithSignatureHeader overrides the header carrying the signature.
func WithSignatureHeader(name string) ReceiverOption {
	return func(r *Receiver) {
		if name != "" {
			r.signatureHeader = name
		}
	}
}

// DefaultSignatureHeader is the header checked unless overridden.
const DefaultSignatureHeader = "X-Firebase-Signature"

// NewReceiver composes a verifier and router into a Receiver.
func NewReceiver(verifier *Verifier, router *Router, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		verifier:        verifier,
		router:          router,
		signatureHeader: DefaultSignatureHeader,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes a single delivery. On success it returns the
// acknowledgement for the caller; on failure the error matches one of the
// package's sentinel errors and can be rendered with Classify.
func (r *Receiver) Handle(ctx context.Context, req *WebhookRequest) (*Ack, error) {
	endpoint, err := ParseEndpoint(req.Endpoint)
	if err != nil {
		return nil, err
	}

	logger := log.With().
		Str("request_id", req.RequestID).
		Str("endpoint", endpoint.String()).
		Str("client", req.ClientKey).
		Logger()

	signature := ExtractSignature(req.Header, r.signatureHeader)
	if err := r.verifier.Verify(req.Body, signature); err != nil {
		logger.Warn().Err(err).Msg("Webhook signature verification failed")
		return nil, err
	}

	var quota *Quota
	if r.limiter != nil {
		q, ok := r.limiter.Take(req.ClientKey)
		if !ok {
			logger.Warn().Int("limit", q.Limit).Time("reset", q.Reset).Msg("Webhook rate limited")
			return nil, &RateLimitError{Quota: q}
		}
		quota = &q
	}

	ev, err := decodeEvent(endpoint, req)
	if err != nil {
		logger.Warn().Err(err).Msg("Malformed webhook payload")
		return nil, err
	}

	if err := r.router.Dispatch(ctx, ev); err != nil {
		logger.Error().Err(err).Str("uid", ev.user.UID).Msg("Webhook dispatch failed")
		return nil, err
	}

	logger.Info().Str("uid", ev.user.UID).Msg("Webhook processed")

	return &Ack{
		Status: "processed",
		Event:  endpoint,
		UID:    ev.user.UID,
		Quota:  quota,
	}, nil
}

// decodeEvent parses the body of a request whose signature has already been
// verified.
func decodeEvent(endpoint Endpoint, req *WebhookRequest) (*VerifiedEvent, error) {
	var payload Payload
	dec := json.NewDecoder(bytes.NewReader(req.Body))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedPayload)
	}
	if payload.Data.UID == "" {
		return nil, fmt.Errorf("%w: data.uid is required", ErrMalformedPayload)
	}

	return &VerifiedEvent{
		endpoint:   endpoint,
		user:       payload.Data,
		requestID:  req.RequestID,
		receivedAt: req.ReceivedAt,
	}, nil
}
