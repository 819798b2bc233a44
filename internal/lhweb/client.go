// Package lhweb talks to the booking site's JSON API with the bearer token taken
// from a logged-in browser session.
package lhweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/slotbook/internal/booking"
)

const (
	DefaultBaseURL = "https://sportsbookings.leeds.ac.uk/LhWeb/en/api"

	siteID   = "1"
	siteName = "Sport & Physical Activity"
)

type Client struct {
	HTTP    *http.Client
	BaseURL string
	Log     *slog.Logger
}

func NewClient(log *slog.Logger) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		BaseURL: DefaultBaseURL,
		Log:     log,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any, creds booking.Credentials) (*http.Request, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	if query != nil {
		base.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base.String(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	return req, nil
}

// do sends req and returns the status and full body. Non-2xx is not an error here;
// callers decide what a status means.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, creds booking.Credentials, dest any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, creds)
	if err != nil {
		return booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "build request", err)
	}
	status, body, err := c.do(req)
	if err != nil {
		return booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "request failed", err)
	}
	if status != http.StatusOK {
		return booking.APIError(booking.KindUnexpectedTerminal, op,
			fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(body))))
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "decode response", err)
	}
	return nil
}
