// Package spotify implements the playback provider against the Spotify Web
// API. It drives an existing Spotify Connect device: listing targets, finding
// tracks, starting playback, and checking what is currently playing.
//
// Authentication is a pre-obtained OAuth access token with the
// user-read-playback-state and user-modify-playback-state scopes. Token
// refresh is the caller's concern; an expired token surfaces as
// [player.AuthError].
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/earworm-audio/earworm/pkg/provider/player"
)

const defaultBaseURL = "https://api.spotify.com"

// Compile-time interface check.
var _ player.Provider = (*Client)(nil)

// Client is a Spotify Web API playback client. It is safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	market  string
	http    *http.Client

	mu       sync.Mutex
	deviceID string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithMarket sets the market code for track search (e.g., "US", "DE").
func WithMarket(market string) Option {
	return func(c *Client) { c.market = market }
}

// New creates a Client. token must be non-empty.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("spotify: token must not be empty")
	}
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- API response types ----

type devicesResponse struct {
	Devices []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"devices"`
}

type searchResponse struct {
	Tracks struct {
		Items []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"items"`
	} `json:"tracks"`
}

type currentlyPlayingResponse struct {
	IsPlaying bool `json:"is_playing"`
	Item      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"item"`
}

// Devices lists the Spotify Connect devices currently visible to the account.
func (c *Client) Devices(ctx context.Context) ([]player.Device, error) {
	var res devicesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/me/player/devices", nil, &res); err != nil {
		return nil, fmt.Errorf("spotify: list devices: %w", err)
	}

	devices := make([]player.Device, 0, len(res.Devices))
	for _, d := range res.Devices {
		devices = append(devices, player.Device{ID: d.ID, Name: d.Name, Type: d.Type})
	}
	return devices, nil
}

// SetDevice selects the Spotify Connect device for subsequent StartPlayback
// calls.
func (c *Client) SetDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = id
}

// FindTrack searches Spotify for the song title and returns the top track
// result, or nil when the catalogue has nothing for it.
func (c *Client) FindTrack(ctx context.Context, title string) (*player.Track, error) {
	q := url.Values{}
	q.Set("q", title)
	q.Set("type", "track")
	q.Set("limit", "1")
	if c.market != "" {
		q.Set("market", c.market)
	}

	var res searchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/search?"+q.Encode(), nil, &res); err != nil {
		return nil, fmt.Errorf("spotify: search track %q: %w", title, err)
	}
	if len(res.Tracks.Items) == 0 {
		return nil, nil
	}
	item := res.Tracks.Items[0]
	return &player.Track{ID: item.ID, Name: item.Name}, nil
}

// StartPlayback asks Spotify to play the track on the selected device.
func (c *Client) StartPlayback(ctx context.Context, track *player.Track) error {
	if track == nil {
		return errors.New("spotify: nil track")
	}
	c.mu.Lock()
	deviceID := c.deviceID
	c.mu.Unlock()

	path := "/v1/me/player/play"
	if deviceID != "" {
		path += "?device_id=" + url.QueryEscape(deviceID)
	}
	body := map[string]any{"uris": []string{"spotify:track:" + track.ID}}

	// A successful play command answers 204.
	err := c.do(ctx, http.MethodPut, path, body, nil)
	if err != nil && !errors.Is(err, errNoContent) {
		return fmt.Errorf("spotify: start playback of %q: %w", track.Name, err)
	}
	return nil
}

// VerifyPlaying reports whether Spotify is currently playing the given track.
// An empty 204 response means nothing is playing at all.
func (c *Client) VerifyPlaying(ctx context.Context, track *player.Track) (bool, error) {
	if track == nil {
		return false, errors.New("spotify: nil track")
	}

	var res currentlyPlayingResponse
	err := c.do(ctx, http.MethodGet, "/v1/me/player/currently-playing", nil, &res)
	if errors.Is(err, errNoContent) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("spotify: currently playing: %w", err)
	}
	return res.IsPlaying && res.Item.ID == track.ID, nil
}

// errNoContent marks a 204 reply, which some playback endpoints use for
// "nothing to report".
var errNoContent = errors.New("no content")

// do performs one authenticated API request. A non-nil out is filled from the
// JSON response body. 401 and 403 become [player.AuthError]; other non-2xx
// statuses become plain errors carrying the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &player.AuthError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, data)}

	case resp.StatusCode == http.StatusNoContent:
		return errNoContent

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
