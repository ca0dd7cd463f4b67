package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkov/seedtrack/internal/api"
	"github.com/avolkov/seedtrack/internal/common"
)

const defaultTimeout = 10 * time.Second

// HTTPClient talks JSON over HTTP to the system of record.
type HTTPClient struct {
	baseURL  string
	deviceID string
	actorID  string
	client   *http.Client
}

func NewHTTPClient(baseURL, deviceID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:  baseURL,
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
	}
}

// SetActor records the authenticated user id sent with every request.
func (c *HTTPClient) SetActor(actorID string) {
	c.actorID = actorID
}

func (c *HTTPClient) DownloadBundle(ctx context.Context, treatmentID string) (*api.Bundle, error) {
	req := api.DownloadBundleRequest{TreatmentID: treatmentID, DeviceID: c.deviceID}
	var resp api.DownloadBundleResponse
	if err := c.post(ctx, "/offline/download-bundle", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Bundle, nil
}

func (c *HTTPClient) Push(ctx context.Context, mutations []api.Mutation) ([]api.MutationOutcome, error) {
	req := api.PushRequest{DeviceID: c.deviceID, Mutations: mutations}
	var resp api.PushResponse
	if err := c.post(ctx, "/offline/push", req, &resp); err != nil {
		return nil, err
	}
	return resp.Outcomes, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.DeviceIDHeaderName, c.deviceID)
	if c.actorID != "" {
		req.Header.Set(common.ActorIDHeaderName, c.actorID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mapStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func mapTransportError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
}

type errorBody struct {
	Error string `json:"error"`
}

func mapStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrVersionConflict, msg)
	case http.StatusGone:
		return fmt.Errorf("%w: %s", common.ErrTreatmentVoided, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", common.ErrNetworkUnavailable, msg)
	}
	return fmt.Errorf("remote returned %d: %s", resp.StatusCode, msg)
}
