package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/authhook/internal/webhooks"
)

const (
	defaultProbeURL    = "http://localhost:3000"
	defaultProbeSecret = "test-webhook-secret-12345"
)

var (
	probeURL     string
	probeSecret  string
	probeHeader  string
	probeBurst   int
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run end-to-end checks against a running receiver",
	Long: `Run end-to-end checks against a running receiver.

The probe checks the health endpoint, sends signed user-created, user-updated
and user-deleted deliveries, confirms that a bad signature is rejected with 401
and fires a burst of concurrent deliveries expecting at least one 429.

A burst that is never rate limited is reported as a warning. Any failed check
makes the command exit non-zero.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", defaultProbeURL, "Base URL of the receiver")
	probeCmd.Flags().StringVarP(&probeSecret, "secret", "s", defaultProbeSecret, "Webhook secret shared with the receiver")
	probeCmd.Flags().StringVar(&probeHeader, "header", webhooks.DefaultSignatureHeader, "Signature header name")
	probeCmd.Flags().IntVar(&probeBurst, "burst", 5, "Number of concurrent requests in the rate limit check")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "Per-request timeout")

	rootCmd.AddCommand(probeCmd)
}

type probeStatus string

const (
	probePass probeStatus = "PASS"
	probeWarn probeStatus = "WARN"
	probeFail probeStatus = "FAIL"
)

type probeResult struct {
	Name   string
	Status probeStatus
	Detail string
}

type prober struct {
	client  *http.Client
	baseURL string
	secret  string
	header  string
	burst   int
}

func runProbe(cmd *cobra.Command, args []string) error {
	p := &prober{
		client:  &http.Client{Timeout: probeTimeout},
		baseURL: probeURL,
		secret:  probeSecret,
		header:  probeHeader,
		burst:   probeBurst,
	}

	results := p.run(cmd.Context())

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		fmt.Fprintf(out, "%-4s  %-20s %s\n", r.Status, r.Name, r.Detail)
		if r.Status == probeFail {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	return nil
}

func (p *prober) run(ctx context.Context) []probeResult {
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339)

	return []probeResult{
		p.checkHealth(ctx),
		p.checkDelivery(ctx, "user created", webhooks.EndpointUserCreated, webhooks.UserRecord{
			UID:         "test-user-123",
			Email:       "test@example.com",
			DisplayName: "Test User",
			PhoneNumber: "+1234567890",
			PhotoURL:    "https://example.com/photo.jpg",
			Metadata: map[string]string{
				"creationTime":   now,
				"lastSignInTime": now,
			},
		}),
		p.checkDelivery(ctx, "user updated", webhooks.EndpointUserUpdated, webhooks.UserRecord{
			UID:         "test-user-123",
			Email:       "updated@example.com",
			DisplayName: "Updated User",
			PhoneNumber: "+1987654321",
			PhotoURL:    "https://example.com/new-photo.jpg",
			Metadata: map[string]string{
				"lastSignInTime": now,
			},
		}),
		p.checkDelivery(ctx, "user deleted", webhooks.EndpointUserDeleted, webhooks.UserRecord{
			UID: "test-user-123",
		}),
		p.checkInvalidSignature(ctx),
		p.checkRateLimit(ctx),
	}
}

func (p *prober) url(path string) string {
	return strings.TrimRight(p.baseURL, "/") + path
}

func (p *prober) checkHealth(ctx context.Context) probeResult {
	res := probeResult{Name: "health"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url("/webhooks/firebase/health"), nil)
	if err != nil {
		return res.fail(err)
	}
	status, body, err := p.do(req)
	if err != nil {
		return res.fail(err)
	}
	if status != http.StatusOK {
		return res.unexpected(status, body)
	}
	res.Status = probePass
	res.Detail = body
	return res
}

func (p *prober) checkDelivery(ctx context.Context, name string, endpoint webhooks.Endpoint, user webhooks.UserRecord) probeResult {
	res := probeResult{Name: name}

	body, err := json.Marshal(webhooks.Payload{Data: user})
	if err != nil {
		return res.fail(err)
	}

	req, err := p.signed(ctx, endpoint, body, webhooks.Sign(body, p.secret))
	if err != nil {
		return res.fail(err)
	}
	status, respBody, err := p.do(req)
	if err != nil {
		return res.fail(err)
	}
	if status < 200 || status >= 300 {
		return res.unexpected(status, respBody)
	}
	res.Status = probePass
	res.Detail = respBody
	return res
}

func (p *prober) checkInvalidSignature(ctx context.Context) probeResult {
	res := probeResult{Name: "invalid signature"}

	body := []byte(`{"data":{"uid":"test-invalid","email":"invalid@example.com"}}`)
	req, err := p.signed(ctx, webhooks.EndpointUserCreated, body, "sha256=invalid-signature")
	if err != nil {
		return res.fail(err)
	}
	status, respBody, err := p.do(req)
	if err != nil {
		return res.fail(err)
	}
	if status != http.StatusUnauthorized {
		return res.unexpected(status, respBody)
	}
	res.Status = probePass
	res.Detail = "rejected with 401"
	return res
}

func (p *prober) checkRateLimit(ctx context.Context) probeResult {
	res := probeResult{Name: "rate limit"}

	body := []byte(`{"data":{"uid":"rate-limit-test","email":"ratelimit@example.com"}}`)
	sig := webhooks.Sign(body, p.secret)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = make(map[int]int)
		firstErr error
	)
	for range max(p.burst, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req, err := p.signed(ctx, webhooks.EndpointUserCreated, body, sig)
			var status int
			if err == nil {
				status, _, err = p.do(req)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			statuses[status]++
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return res.fail(firstErr)
	}

	res.Detail = fmt.Sprintf("%d ok, %d limited", statuses[http.StatusOK], statuses[http.StatusTooManyRequests])
	if statuses[http.StatusTooManyRequests] > 0 {
		res.Status = probePass
	} else {
		res.Status = probeWarn
		res.Detail += " (limit not reached)"
	}
	return res
}

func (p *prober) signed(ctx context.Context, endpoint webhooks.Endpoint, body []byte, signature string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url("/webhooks/firebase/"+endpoint.String()), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(p.header, signature)
	return req, nil
}

func (p *prober) do(req *http.Request) (int, string, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}

func (r probeResult) fail(err error) probeResult {
	r.Status = probeFail
	r.Detail = err.Error()
	return r
}

func (r probeResult) unexpected(status int, body string) probeResult {
	r.Status = probeFail
	r.Detail = fmt.Sprintf("status %d: %s", status, body)
	return r
}
