package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/watzon/authhook/internal/deliverylog"
)

// DeliveryHandlers exposes the delivery log to holders of the admin token.
type DeliveryHandlers struct {
	store *deliverylog.Store
	token string
}

func NewDeliveryHandlers(store *deliverylog.Store, token string) *DeliveryHandlers {
	return &DeliveryHandlers{store: store, token: token}
}

// List handles GET /webhooks/firebase/deliveries.
func (h *DeliveryHandlers) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		Unauthorized(w, "invalid admin token")
		return
	}

	opts, err := parseDeliveryFilter(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	result := h.store.List(opts)
	JSON(w, http.StatusOK, map[string]any{
		"deliveries": result.Entries,
		"total":      result.Total,
		"limit":      result.Limit,
		"offset":     result.Offset,
		"stats":      h.store.Stats(),
	})
}

func (h *DeliveryHandlers) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) == 1
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseDeliveryFilter(r *http.Request) (deliverylog.FilterOptions, error) {
	q := r.URL.Query()
	opts := deliverylog.FilterOptions{
		Endpoint:  q.Get("endpoint"),
		UID:       q.Get("uid"),
		ClientKey: q.Get("client"),
	}

	ints := map[string]*int{
		"status":     &opts.Status,
		"min_status": &opts.MinStatus,
		"limit":      &opts.Limit,
		"offset":     &opts.Offset,
	}
	for name, dst := range ints {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, filterError(name + " must be a non-negative integer")
		}
		*dst = n
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, filterError("since must be an RFC 3339 timestamp")
		}
		opts.Since = since
	}

	return opts, nil
}
