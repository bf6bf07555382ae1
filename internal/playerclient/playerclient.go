// Package playerclient is the HTTP adapter for the external music
// player's local REST control surface.
package playerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/cidererr"
)

const (
	connectTimeout = 1 * time.Second
	requestTimeout = 2 * time.Second
	basePath       = "/api/v1/playback"
)

// Client talks to the player's loopback HTTP control surface.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

// New builds a Client pointed at baseURL (e.g. "http://127.0.0.1:10767").
// apiToken, if non-empty, is sent as the "apitoken" header on every request.
func New(baseURL, apiToken string) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
}

// NowPlaying mirrors the player's now-playing response.
type NowPlaying struct {
	SongID     string  `json:"songId"`
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	DurationMs uint64  `json:"durationMs"`
	PositionMs uint64  `json:"positionMs"`
	ArtworkURL string  `json:"artworkUrl"`
	IsPlaying  bool    `json:"isPlaying"`
	Volume     float64 `json:"volume"`
}

// SetAPIToken updates the apitoken header sent with every subsequent
// request, letting a long-lived Client pick up a token obtained after
// construction.
func (c *Client) SetAPIToken(token string) {
	c.apiToken = token
}

// Active reports whether the player process is reachable at all.
func (c *Client) Active(ctx context.Context) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, "/active", nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsPlaying reports the player's current playing state.
func (c *Client) IsPlaying(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/is-playing", nil)
	if err != nil {
		return false, err
	}
	var resp struct {
		IsPlaying bool `json:"isPlaying"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, cidererr.Wrap(cidererr.KindPlayer, "decode is-playing", err)
	}
	return resp.IsPlaying, nil
}

// NowPlayingInfo fetches the currently loaded track and position.
func (c *Client) NowPlayingInfo(ctx context.Context) (NowPlaying, error) {
	body, err := c.do(ctx, http.MethodGet, "/now-playing", nil)
	if err != nil {
		return NowPlaying{}, err
	}
	var np NowPlaying
	if err := json.Unmarshal(body, &np); err != nil {
		return NowPlaying{}, cidererr.Wrap(cidererr.KindPlayer, "decode now-playing", err)
	}
	return np, nil
}

// Play resumes playback.
func (c *Client) Play(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/play", nil)
	return err
}

// Pause halts playback.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/pause", nil)
	return err
}

// PlayPause toggles playback.
func (c *Client) PlayPause(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/playpause", nil)
	return err
}

// Stop halts playback and resets position.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/stop", nil)
	return err
}

// Next skips to the next queued track.
func (c *Client) Next(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/next", nil)
	return err
}

// Previous returns to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/previous", nil)
	return err
}

// Seek jumps to positionSeconds within the current track.
func (c *Client) Seek(ctx context.Context, positionSeconds float64) error {
	_, err := c.do(ctx, http.MethodPost, "/seek", map[string]float64{"position": positionSeconds})
	return err
}

// PlayURL starts playback of an arbitrary media URL.
func (c *Client) PlayURL(ctx context.Context, url string) error {
	_, err := c.do(ctx, http.MethodPost, "/play-url", map[string]string{"url": url})
	return err
}

// PlayItem starts playback of a library item by type and id.
func (c *Client) PlayItem(ctx context.Context, itemType, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/play-item", map[string]string{"type": itemType, "id": id})
	return err
}

// PlayNext posts to the player's /play-next endpoint with no body.
func (c *Client) PlayNext(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/play-next", nil)
	return err
}

// PlayLater posts to the player's /play-later endpoint with no body.
func (c *Client) PlayLater(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/play-later", nil)
	return err
}

// Volume returns the current playback volume, 0..1.
func (c *Client) Volume(ctx context.Context) (float64, error) {
	body, err := c.do(ctx, http.MethodGet, "/volume", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Volume float64 `json:"volume"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, cidererr.Wrap(cidererr.KindPlayer, "decode volume", err)
	}
	return resp.Volume, nil
}

// SetVolume sets playback volume, 0..1.
func (c *Client) SetVolume(ctx context.Context, volume float64) error {
	_, err := c.do(ctx, http.MethodPost, "/volume", map[string]float64{"volume": volume})
	return err
}

// SetRating rates the current track: -1 (dislike), 0 (none), 1 (like).
func (c *Client) SetRating(ctx context.Context, rating int) error {
	_, err := c.do(ctx, http.MethodPost, "/set-rating", map[string]int{"rating": rating})
	return err
}

// RepeatMode returns the player's current repeat mode string.
func (c *Client) RepeatMode(ctx context.Context) (string, error) {
	return c.getStringField(ctx, "/repeat-mode", "repeatMode")
}

// SetRepeatMode sets the player's repeat mode.
func (c *Client) SetRepeatMode(ctx context.Context, mode string) error {
	_, err := c.do(ctx, http.MethodPost, "/repeat-mode", map[string]string{"repeatMode": mode})
	return err
}

// ShuffleMode returns the player's current shuffle mode string.
func (c *Client) ShuffleMode(ctx context.Context) (string, error) {
	return c.getStringField(ctx, "/shuffle-mode", "shuffleMode")
}

// SetShuffleMode sets the player's shuffle mode.
func (c *Client) SetShuffleMode(ctx context.Context, mode string) error {
	_, err := c.do(ctx, http.MethodPost, "/shuffle-mode", map[string]string{"shuffleMode": mode})
	return err
}

// Autoplay reports whether autoplay is enabled.
func (c *Client) Autoplay(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/autoplay", nil)
	if err != nil {
		return false, err
	}
	var resp struct {
		Autoplay bool `json:"autoplay"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, cidererr.Wrap(cidererr.KindPlayer, "decode autoplay", err)
	}
	return resp.Autoplay, nil
}

// SetAutoplay enables or disables autoplay.
func (c *Client) SetAutoplay(ctx context.Context, enabled bool) error {
	_, err := c.do(ctx, http.MethodPost, "/autoplay", map[string]bool{"autoplay": enabled})
	return err
}

// ClearQueue empties the playback queue.
func (c *Client) ClearQueue(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/queue/clear-queue", nil)
	return err
}

// AddToLibrary adds the current track to the user's library.
func (c *Client) AddToLibrary(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/add-to-library", nil)
	return err
}

func (c *Client) getStringField(ctx context.Context, path, field string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", cidererr.Wrap(cidererr.KindPlayer, "decode "+field, err)
	}
	return resp[field], nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, cidererr.Wrap(cidererr.KindPlayer, "encode request", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, bodyReader)
	if err != nil {
		return nil, cidererr.Wrap(cidererr.KindPlayer, "build request", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("apitoken", c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A connect/timeout failure means the player process isn't
		// listening at all, distinct from an API-level error response.
		return nil, cidererr.Wrap(cidererr.KindPlayerUnreachable, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cidererr.Wrap(cidererr.KindPlayer, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, cidererr.New(cidererr.KindUnauthorized, fmt.Sprintf("%s %s: %d", method, path, resp.StatusCode))
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return body, nil
	default:
		return nil, cidererr.New(cidererr.KindPlayer, fmt.Sprintf("%s %s: unexpected status %d", method, path, resp.StatusCode))
	}
}
