// Package webhooks implements the signed user-lifecycle webhook receiver:
// signature verification, per-client rate limiting and dispatch of
// user-created, user-updated and user-deleted events to a UserService.
package webhooks

import (
	"context"
	"net/http"
	"time"
)

// Endpoint names a webhook event path segment.
type Endpoint string

const (
	EndpointUserCreated Endpoint = "user-created"
	EndpointUserUpdated Endpoint = "user-updated"
	EndpointUserDeleted Endpoint = "user-deleted"
)

// Endpoints lists every endpoint the receiver accepts.
var Endpoints = []Endpoint{EndpointUserCreated, EndpointUserUpdated, EndpointUserDeleted}

// ParseEndpoint resolves a path segment to an Endpoint.
func ParseEndpoint(name string) (Endpoint, error) {
	switch e := Endpoint(name); e {
	case EndpointUserCreated, EndpointUserUpdated, EndpointUserDeleted:
		return e, nil
	default:
		return "", ErrUnknownEndpoint
	}
}

func (e Endpoint) String() string {
	return string(e)
}

// UserRecord is the "data" object of a webhook payload.
type UserRecord struct {
	UID         string            `json:"uid"`
	Email       string            `json:"email,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	PhotoURL    string            `json:"photoURL,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Payload is the JSON envelope posted to every endpoint.
type Payload struct {
	Data UserRecord `json:"data"`
}

// UserService is the downstream collaborator that applies user events.
// Implementations must honor ctx; calls that outlive the downstream timeout
// are abandoned and reported as ErrDownstreamTimeout.
type UserService interface {
	CreateUser(ctx context.Context, user UserRecord) error
	UpdateUser(ctx context.Context, user UserRecord) error
	DeleteUser(ctx context.Context, uid string) error
}

// WebhookRequest is an inbound delivery as received on the wire.
type WebhookRequest struct {
	Endpoint   string      // raw {endpoint} path segment
	Body       []byte      // exact body bytes
	Header     http.Header // request headers
	ClientKey  string      // rate limit identity
	RequestID  string
	ReceivedAt time.Time
}

// VerifiedEvent is a delivery whose signature has been checked and whose
// payload has been decoded. It can only be built by this package after
// verification succeeds.
type VerifiedEvent struct {
	endpoint   Endpoint
	user       UserRecord
	requestID  string
	receivedAt time.Time
}

func (e *VerifiedEvent) Endpoint() Endpoint {
	return e.endpoint
}

func (e *VerifiedEvent) User() UserRecord {
	return e.user
}

func (e *VerifiedEvent) RequestID() string {
	return e.requestID
}

func (e *VerifiedEvent) ReceivedAt() time.Time {
	return e.receivedAt
}

// Quota is the rate limit state reported for a client after a request.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter admits or rejects requests per client key.
type Limiter interface {
	Take(key string) (Quota, bool)
}

// Ack is the acknowledgement returned for a processed delivery.
type Ack struct {
	Status string   `json:"status"`
	Event  Endpoint `json:"event"`
	UID    string   `json:"uid"`

	Quota *Quota `json:"-"`
}
