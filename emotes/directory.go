// Package emotes maintains a lookup table of third-party (dictionary)
// emotes from a 7TV-compatible API. The directory merges the global emote
// set with per-channel sets; channel emotes shadow global ones of the same
// code.
package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chat-replay/segment"
)

// zero-width flag bit in 7TV emote set entries.
const flagZeroWidth = 1 << 8

// Directory is a thread-safe name-to-emote table.
type Directory struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	byName map[string]segment.EmoteRef
}

// NewDirectory returns an empty directory backed by the API at baseURL,
// e.g. "https://7tv.io".
func NewDirectory(baseURL string, httpClient *http.Client) *Directory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Directory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		byName:  make(map[string]segment.EmoteRef),
	}
}

type setEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Flags int    `json:"flags"`
}

type emoteSet struct {
	Emotes []setEntry `json:"emotes"`
}

type userResponse struct {
	EmoteSet emoteSet `json:"emote_set"`
}

// LoadGlobal loads the platform-wide emote set.
func (d *Directory) LoadGlobal(ctx context.Context) error {
	var set emoteSet
	if err := d.getJSON(ctx, d.baseURL+"/v3/emote-sets/global", &set); err != nil {
		return fmt.Errorf("load global emotes: %w", err)
	}
	d.add(set.Emotes)
	return nil
}

// LoadChannel loads the channel's emote set by Twitch user id. Channel
// entries overwrite global entries with the same code.
func (d *Directory) LoadChannel(ctx context.Context, twitchUserID string) error {
	var resp userResponse
	if err := d.getJSON(ctx, d.baseURL+"/v3/users/twitch/"+twitchUserID, &resp); err != nil {
		return fmt.Errorf("load channel emotes: %w", err)
	}
	d.add(resp.EmoteSet.Emotes)
	return nil
}

func (d *Directory) add(entries []setEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		d.byName[e.Name] = segment.EmoteRef{
			ID:        e.ID,
			Name:      e.Name,
			Provider:  "7tv",
			ZeroWidth: e.Flags&flagZeroWidth != 0,
		}
	}
}

// Lookup resolves an emote code. It satisfies segment.EmoteLookup.
func (d *Directory) Lookup(name string) (segment.EmoteRef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ref, ok := d.byName[name]
	return ref, ok
}

// Len reports how many distinct codes are loaded.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}

func (d *Directory) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("emote API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
