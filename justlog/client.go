// Package justlog reads raw chat logs from a justlog-compatible log server.
// It implements logcache.Source over the /channel/{channel}/{y}/{m}/{d}?raw
// endpoints.
package justlog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/chat-replay/chatlog"
	"github.com/onnwee/chat-replay/logcache"
)

// Client talks to one log server instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the server at baseURL, e.g. "https://logs.example.com".
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// FetchDay returns the raw log lines for one UTC calendar day. A 404 from
// the server means no chat was logged and maps to logcache.ErrNoData.
func (c *Client) FetchDay(ctx context.Context, channel string, day time.Time) (string, error) {
	d := day.UTC()
	u := fmt.Sprintf("%s/channel/%s/%d/%d/%d?raw",
		c.baseURL, url.PathEscape(strings.ToLower(channel)), d.Year(), int(d.Month()), d.Day())
	return c.get(ctx, u)
}

// FetchRange returns the raw log lines between from and to, inclusive.
func (c *Client) FetchRange(ctx context.Context, channel string, from, to time.Time) (string, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	q.Set("raw", "")
	u := fmt.Sprintf("%s/channel/%s/range?%s",
		c.baseURL, url.PathEscape(strings.ToLower(channel)), q.Encode())
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build log request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch logs: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return "", logcache.ErrNoData
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("log server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	// Some servers ignore ?raw and answer with the JSON message envelope
	// instead. Decode it and reassemble the raw block from the per-message
	// raw lines so callers always see plain IRC text.
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		msgs, err := chatlog.DecodeJSON(resp.Body)
		if err != nil {
			return "", fmt.Errorf("decode json logs: %w", err)
		}
		lines := make([]string, len(msgs))
		for i, m := range msgs {
			if m.Raw == "" {
				return "", fmt.Errorf("json log message %q has no raw line", m.ID)
			}
			lines[i] = m.Raw
		}
		return strings.Join(lines, "\n"), nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read log body: %w", err)
	}
	return string(body), nil
}
