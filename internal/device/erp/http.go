package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkov/seedtrack/internal/common"
)

// HTTPLookupClient queries the hospital ERP's product endpoint. It is the
// upstream behind the cache gateway; callers should not use it directly.
type HTTPLookupClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPLookupClient(baseURL string, timeout time.Duration) *HTTPLookupClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPLookupClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPLookupClient) Lookup(ctx context.Context, serialNumber string) (Metadata, error) {
	u := c.baseURL + "/products/" + url.PathEscape(serialNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return Metadata{}, fmt.Errorf("%w: %v", common.ErrTimeout, err)
		}
		return Metadata{}, fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Metadata{}, fmt.Errorf("%w: serial %s", common.ErrNotFound, serialNumber)
	default:
		return Metadata{}, fmt.Errorf("%w: erp returned %d", common.ErrNetworkUnavailable, resp.StatusCode)
	}

	var m Metadata
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("decoding product metadata: %w", err)
	}
	return m, nil
}
