package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/authhook/internal/metrics"
)

// Router dispatches verified events to the UserService.
type Router struct {
	users   UserService
	timeout time.Duration
}

// NewRouter creates a router whose downstream calls are bounded by timeout.
func NewRouter(users UserService, timeout time.Duration) *Router {
	return &Router{
		users:   users,
		timeout: timeout,
	}
}

// Dispatch routes ev to the handler for its endpoint.
func (r *Router) Dispatch(ctx context.Context, ev *VerifiedEvent) error {
	switch ev.endpoint {
	case EndpointUserCreated:
		return r.onUserCreated(ctx, ev)
	case EndpointUserUpdated:
		return r.onUserUpdated(ctx, ev)
	case EndpointUserDeleted:
		return r.onUserDeleted(ctx, ev)
	default:
		return ErrUnknownEndpoint
	}
}

func (r *Router) onUserCreated(ctx context.Context, ev *VerifiedEvent) error {
	return r.call(ctx, ev, func(ctx context.Context) error {
		return r.users.CreateUser(ctx, ev.user)
	})
}

func (r *Router) onUserUpdated(ctx context.Context, ev *VerifiedEvent) error {
	return r.call(ctx, ev, func(ctx context.Context) error {
		return r.users.UpdateUser(ctx, ev.user)
	})
}

func (r *Router) onUserDeleted(ctx context.Context, ev *VerifiedEvent) error {
	return r.call(ctx, ev, func(ctx context.Context) error {
		return r.users.DeleteUser(ctx, ev.user.UID)
	})
}

// call runs fn under the downstream timeout. The caller's cancellation is
// not propagated; only the timeout ends the call early. A collaborator that
// ignores its context is abandoned at the deadline.
func (r *Router) call(ctx context.Context, ev *VerifiedEvent, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error().
					Interface("panic", p).
					Str("endpoint", ev.endpoint.String()).
					Str("request_id", ev.requestID).
					Msg("User service panicked")
				done <- fmt.Errorf("%w: panic: %v", ErrDownstreamFailure, p)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
		if err != nil && !errors.Is(err, ErrDownstreamFailure) {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrDownstreamTimeout, err)
			} else {
				err = fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
			}
		}
	case <-ctx.Done():
		err = fmt.Errorf("%w after %s", ErrDownstreamTimeout, r.timeout)
	}

	result := "ok"
	switch {
	case errors.Is(err, ErrDownstreamTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	metrics.RecordDownstreamCall(ev.endpoint.String(), result, time.Since(start))

	return err
}
