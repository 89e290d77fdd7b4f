package harbourmaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/runnable/runnable-api/internal/metrics"
)

// TokenHeader carries the acting user's API token on commit requests.
const TokenHeader = "runnable-token"

const buildSuccessMarker = "Successfully built"

// ContainerSpec is the body of a create-container request.
type ContainerSpec struct {
	ServicesToken string   `json:"servicesToken"`
	WebToken      string   `json:"webToken"`
	Env           []string `json:"Env"`
	Hostname      string   `json:"Hostname"`
	Image         string   `json:"Image"`
	PortSpecs     []string `json:"PortSpecs"`
	Cmd           []string `json:"Cmd"`
}

// Client talks to the build service. Every call is a single attempt over a
// fresh connection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With().Str("component", "harbourmaster").Logger(),
	}
}

// CommitContainer asks the build service to commit the live container into
// an image. snapshot must already carry encoded identifiers.
func (c *Client) CommitContainer(ctx context.Context, servicesToken string, snapshot any, token string) error {
	path := fmt.Sprintf("/containers/%s/commit", url.PathEscape(servicesToken))
	headers := map[string]string{TokenHeader: token}
	_, err := c.do(ctx, "commit", http.MethodPost, path, headers, snapshot, http.StatusNoContent)
	return err
}

// CreateContainer provisions a live container.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) error {
	_, err := c.do(ctx, "create", http.MethodPost, "/containers/", nil, spec, http.StatusNoContent)
	return err
}

// DeleteContainer decommissions a single live container.
func (c *Client) DeleteContainer(ctx context.Context, servicesToken string) error {
	path := "/containers/" + url.PathEscape(servicesToken)
	_, err := c.do(ctx, "delete", http.MethodDelete, path, nil, nil, http.StatusNoContent)
	return err
}

// UpdateRoute rebinds the container's public subdomain to webToken.
func (c *Client) UpdateRoute(ctx context.Context, servicesToken, webToken string) error {
	path := fmt.Sprintf("/containers/%s/route", url.PathEscape(servicesToken))
	body := map[string]string{"webToken": webToken}
	_, err := c.do(ctx, "route", http.MethodPut, path, nil, body, http.StatusOK)
	return err
}

// Cleanup sends the tokens of every container that must survive. The build
// service tears down all others.
func (c *Client) Cleanup(ctx context.Context, whitelist []string) error {
	if whitelist == nil {
		whitelist = []string{}
	}
	_, err := c.do(ctx, "cleanup", http.MethodPost, "/containers/cleanup", nil, whitelist, http.StatusOK)
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: status %d: %s", ErrWhitelistRejected, se.StatusCode, se.Body)
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		return fmt.Errorf("%w: %v", ErrWhitelistRejected, err)
	}
	return err
}

// BuildImage streams a tar build context to the build service and tags the
// result. The body is expected to contain Docker's success marker.
func (c *Client) BuildImage(ctx context.Context, tag string, buildContext io.Reader) error {
	start := time.Now()
	u := c.baseURL + "/build?" + url.Values{"t": {tag}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, buildContext)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/tar")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("build", start, "transport")
		return &upstreamError{op: "build", detail: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.observe("build", start, "status")
		return c.statusErr("build", resp.StatusCode, body)
	}
	if !bytes.Contains(body, []byte(buildSuccessMarker)) {
		c.observe("build", start, "failed")
		return fmt.Errorf("build %s: %w", tag, ErrBuildFailed)
	}
	c.observe("build", start, "ok")
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, headers map[string]string, payload any, want int) ([]byte, error) {
	start := time.Now()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, start, "transport")
		c.logger.Warn().Err(err).Str("op", op).Msg("build service unreachable")
		return nil, &upstreamError{op: op, detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		c.observe(op, start, "status")
		return nil, c.statusErr(op, resp.StatusCode, respBody)
	}

	c.observe(op, start, "ok")
	return respBody, nil
}

func (c *Client) statusErr(op string, status int, body []byte) error {
	if status >= 500 {
		c.logger.Warn().Str("op", op).Int("status", status).Msg("build service error")
		return &upstreamError{op: op, status: status, detail: string(body)}
	}
	return &StatusError{Op: op, StatusCode: status, Body: string(body)}
}

func (c *Client) observe(op string, start time.Time, outcome string) {
	metrics.HarbourmasterRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
