// Package twitchapi contains minimal helpers to interact with Twitch Helix
// APIs for user id resolution and VOD metadata, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

// Client provides the minimal Helix surface the replay engine needs.
type Client struct {
	Tokens     oauth2.TokenSource
	ClientID   string
	HTTPClient *http.Client
	BaseURL    string // override for tests; defaults to the public API
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	tok, err := c.Tokens.Token()
	if err != nil {
		return fmt.Errorf("app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("helix %s returned %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user id.
func (c *Client) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/users", map[string]string{"login": login}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user %q not found", login)
	}
	return body.Data[0].ID, nil
}

// Video is the VOD metadata a replay session anchors on.
type Video struct {
	ID        string
	UserLogin string
	Title     string
	CreatedAt time.Time
	Duration  time.Duration
}

// GetVideo fetches one VOD by id. CreatedAt is the recording start, which
// maps playback offsets onto absolute chat timestamps.
func (c *Client) GetVideo(ctx context.Context, videoID string) (Video, error) {
	if videoID == "" {
		return Video{}, fmt.Errorf("videoID empty")
	}
	var body struct {
		Data []struct {
			ID        string `json:"id"`
			UserLogin string `json:"user_login"`
			Title     string `json:"title"`
			CreatedAt string `json:"created_at"`
			Duration  string `json:"duration"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/videos", map[string]string{"id": videoID}, &body); err != nil {
		return Video{}, err
	}
	if len(body.Data) == 0 {
		return Video{}, fmt.Errorf("video %q not found", videoID)
	}
	v := body.Data[0]
	created, err := time.Parse(time.RFC3339, v.CreatedAt)
	if err != nil {
		return Video{}, fmt.Errorf("parse created_at: %w", err)
	}
	// Helix reports duration in Go-compatible 1h2m3s notation.
	dur, err := time.ParseDuration(v.Duration)
	if err != nil {
		return Video{}, fmt.Errorf("parse duration: %w", err)
	}
	return Video{
		ID:        v.ID,
		UserLogin: v.UserLogin,
		Title:     v.Title,
		CreatedAt: created,
		Duration:  dur,
	}, nil
}
