package handlers

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/authhook/internal/deliverylog"
	"github.com/watzon/authhook/internal/metrics"
	"github.com/watzon/authhook/internal/requestctx"
	"github.com/watzon/authhook/internal/webhooks"
)

// WebhookHandlers serves the signed webhook endpoints.
type WebhookHandlers struct {
	receiver   *webhooks.Receiver
	deliveries *deliverylog.Store
}

// NewWebhookHandlers creates webhook handlers. deliveries may be nil.
func NewWebhookHandlers(receiver *webhooks.Receiver, deliveries *deliverylog.Store) *WebhookHandlers {
	return &WebhookHandlers{
		receiver:   receiver,
		deliveries: deliveries,
	}
}

var errBodyTooLarge = errors.New("request body too large")

// Receive handles POST /webhooks/firebase/{endpoint}.
func (h *WebhookHandlers) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	received := requestctx.RequestTime(ctx)
	if received.IsZero() {
		received = time.Now()
	}

	req := &webhooks.WebhookRequest{
		Endpoint:   r.PathValue("endpoint"),
		Header:     r.Header,
		ClientKey:  requestctx.ClientKey(ctx),
		RequestID:  requestctx.RequestID(ctx),
		ReceivedAt: received,
	}
	if req.ClientKey == "" {
		req.ClientKey = peerHost(r.RemoteAddr)
	}

	ack, err := h.handle(r, req)

	status := http.StatusOK
	outcome := "ok"
	if err != nil {
		status, outcome = writeFailure(w, err, req)
	} else {
		setQuotaHeaders(w, ack.Quota)
		JSON(w, http.StatusOK, ack)
	}

	endpoint := req.Endpoint
	if _, perr := webhooks.ParseEndpoint(endpoint); perr != nil {
		endpoint = "unknown"
	}
	metrics.RecordDelivery(endpoint, outcome)

	if h.deliveries != nil {
		entry := deliverylog.Entry{
			RequestID: req.RequestID,
			Timestamp: received,
			Endpoint:  endpoint,
			ClientKey: req.ClientKey,
			Status:    status,
			Outcome:   outcome,
			Duration:  time.Since(received),
			BodyBytes: len(req.Body),
		}
		if ack != nil {
			entry.UID = ack.UID
		}
		h.deliveries.Add(entry)
	}
}

func (h *WebhookHandlers) handle(r *http.Request, req *webhooks.WebhookRequest) (*webhooks.Ack, error) {
	// Resolve the endpoint before touching the body so unknown paths are
	// always answered with 404.
	if _, err := webhooks.ParseEndpoint(req.Endpoint); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("%w: reading body: %v", webhooks.ErrMalformedPayload, err)
	}
	req.Body = body

	return h.receiver.Handle(r.Context(), req)
}

func writeFailure(w http.ResponseWriter, err error, req *webhooks.WebhookRequest) (int, string) {
	if errors.Is(err, errBodyTooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		return http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"
	}

	f := webhooks.Classify(err)

	var rlErr *webhooks.RateLimitError
	if errors.As(err, &rlErr) {
		setQuotaHeaders(w, &rlErr.Quota)
		retry := rlErr.RetryAfter(time.Now())
		w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
	}

	if f.Status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", req.RequestID).
			Str("endpoint", req.Endpoint).
			Msg("Unclassified webhook failure")
	}

	Error(w, f.Status, f.Code, f.Message)
	return f.Status, f.Code
}

func setQuotaHeaders(w http.ResponseWriter, q *webhooks.Quota) {
	if q == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(q.Reset.Unix(), 10))
}

// peerHost drops the port so every connection from one address shares a
// rate limit key.
func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
