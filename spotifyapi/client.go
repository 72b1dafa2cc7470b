package spotifyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultBaseURL = "https://api.spotify.com"

// APIError is a non-2xx response from the Spotify Web API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify api: status %d", e.Status)
	}
	return fmt.Sprintf("spotify api: status %d: %s", e.Status, e.Message)
}

// Transient reports whether the failure is worth retrying later (rate limit or
// server-side error) rather than a caller bug or auth problem.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Track is the subset of track metadata the bot surfaces in chat.
type Track struct {
	ID         string
	Name       string
	Artist     string
	URL        string
	DurationMs int
}

// CurrentlyPlaying is the playback snapshot for the currently-playing endpoint.
type CurrentlyPlaying struct {
	Track      Track
	ProgressMs int
	IsPlaying  bool
}

// PlaybackState extends the snapshot with device info from /v1/me/player.
type PlaybackState struct {
	CurrentlyPlaying
	DeviceName    string
	VolumePercent int
	ShuffleState  bool
}

// Artist is the subset of artist metadata used for listening stats.
type Artist struct {
	ID     string
	Name   string
	Genres []string
}

// User is the authenticated Spotify account.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Playlist is a created playlist reference.
type Playlist struct {
	ID  string
	URL string
}

// Client calls the Spotify Web API with a user access token. BaseURL and
// HTTPClient are overridable for tests.
type Client struct {
	AccessToken string
	BaseURL     string
	HTTPClient  *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

// do issues a request and maps non-2xx statuses to *APIError. The caller owns
// the response body on success.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.base() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errBody); decodeErr == nil {
			apiErr.Message = errBody.Error.Message
		}
		closeBody(resp)
		return nil, apiErr
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

type trackJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func (t *trackJSON) toTrack() Track {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return Track{ID: t.ID, Name: t.Name, Artist: artist, URL: t.ExternalURLs.Spotify, DurationMs: t.DurationMs}
}

// GetCurrentlyPlaying returns the user's currently playing track, or nil when
// nothing is playing (the API answers 204, or the item is a non-track).
func (c *Client) GetCurrentlyPlaying(ctx context.Context) (*CurrentlyPlaying, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/me/player/currently-playing", nil, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var body struct {
		IsPlaying  bool       `json:"is_playing"`
		ProgressMs int        `json:"progress_ms"`
		Item       *trackJSON `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode currently playing: %w", err)
	}
	if body.Item == nil || body.Item.ID == "" {
		return nil, nil
	}
	return &CurrentlyPlaying{Track: body.Item.toTrack(), ProgressMs: body.ProgressMs, IsPlaying: body.IsPlaying}, nil
}

// GetPlayback returns the full playback state including the active device, or
// nil when no device is active.
func (c *Client) GetPlayback(ctx context.Context) (*PlaybackState, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/me/player", nil, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var body struct {
		IsPlaying  bool       `json:"is_playing"`
		ProgressMs int        `json:"progress_ms"`
		Item       *trackJSON `json:"item"`
		Shuffle    bool       `json:"shuffle_state"`
		Device     struct {
			Name          string `json:"name"`
			VolumePercent int    `json:"volume_percent"`
		} `json:"device"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode playback state: %w", err)
	}
	st := &PlaybackState{
		DeviceName:    body.Device.Name,
		VolumePercent: body.Device.VolumePercent,
		ShuffleState:  body.Shuffle,
	}
	st.IsPlaying = body.IsPlaying
	st.ProgressMs = body.ProgressMs
	if body.Item != nil {
		st.Track = body.Item.toTrack()
	}
	return st, nil
}

// Pause pauses playback on the active device.
func (c *Client) Pause(ctx context.Context) error {
	return c.command(ctx, http.MethodPut, "/v1/me/player/pause", nil)
}

// Play resumes playback on the active device.
func (c *Client) Play(ctx context.Context) error {
	return c.command(ctx, http.MethodPut, "/v1/me/player/play", nil)
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/v1/me/player/next", nil)
}

// Previous skips back to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	return c.command(ctx, http.MethodPost, "/v1/me/player/previous", nil)
}

// SetVolume sets playback volume, clamped to 0..100.
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	q := url.Values{"volume_percent": {strconv.Itoa(percent)}}
	return c.command(ctx, http.MethodPut, "/v1/me/player/volume", q)
}

func (c *Client) command(ctx context.Context, method, path string, query url.Values) error {
	resp, err := c.do(ctx, method, path, query, nil)
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}

// TopTracks returns the user's most played tracks. timeRange is one of
// short_term, medium_term, long_term; empty defaults to medium_term.
func (c *Client) TopTracks(ctx context.Context, limit int, timeRange string) ([]Track, error) {
	if limit <= 0 {
		limit = 5
	}
	if timeRange == "" {
		timeRange = "medium_term"
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}, "time_range": {timeRange}}
	resp, err := c.do(ctx, http.MethodGet, "/v1/me/top/tracks", q, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Items []trackJSON `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode top tracks: %w", err)
	}
	out := make([]Track, 0, len(body.Items))
	for i := range body.Items {
		out = append(out, body.Items[i].toTrack())
	}
	return out, nil
}

// TopArtists returns the user's most played artists.
func (c *Client) TopArtists(ctx context.Context, limit int, timeRange string) ([]Artist, error) {
	if limit <= 0 {
		limit = 5
	}
	if timeRange == "" {
		timeRange = "medium_term"
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}, "time_range": {timeRange}}
	resp, err := c.do(ctx, http.MethodGet, "/v1/me/top/artists", q, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Items []struct {
			ID     string   `json:"id"`
			Name   string   `json:"name"`
			Genres []string `json:"genres"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode top artists: %w", err)
	}
	out := make([]Artist, 0, len(body.Items))
	for _, a := range body.Items {
		out = append(out, Artist{ID: a.ID, Name: a.Name, Genres: a.Genres})
	}
	return out, nil
}

// RecommendationSeeds selects what recommendations should build on. Spotify
// accepts at most five seeds across all three kinds combined.
type RecommendationSeeds struct {
	TrackIDs  []string
	ArtistIDs []string
	Genres    []string
}

// GetRecommendations returns tracks similar to the given seeds. At least one
// seed is required.
func (c *Client) GetRecommendations(ctx context.Context, seeds RecommendationSeeds, limit int) ([]Track, error) {
	if len(seeds.TrackIDs)+len(seeds.ArtistIDs)+len(seeds.Genres) == 0 {
		return nil, fmt.Errorf("recommendations need at least one seed")
	}
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if len(seeds.TrackIDs) > 0 {
		q.Set("seed_tracks", strings.Join(seeds.TrackIDs, ","))
	}
	if len(seeds.ArtistIDs) > 0 {
		q.Set("seed_artists", strings.Join(seeds.ArtistIDs, ","))
	}
	if len(seeds.Genres) > 0 {
		q.Set("seed_genres", strings.Join(seeds.Genres, ","))
	}
	resp, err := c.do(ctx, http.MethodGet, "/v1/recommendations", q, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Tracks []trackJSON `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	out := make([]Track, 0, len(body.Tracks))
	for i := range body.Tracks {
		out = append(out, body.Tracks[i].toTrack())
	}
	return out, nil
}

// SearchTrack returns the best track match for a free-text query, or nil when
// nothing matches.
func (c *Client) SearchTrack(ctx context.Context, query string) (*Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query empty")
	}
	q := url.Values{"q": {query}, "type": {"track"}, "limit": {"1"}}
	resp, err := c.do(ctx, http.MethodGet, "/v1/search", q, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Tracks struct {
			Items []trackJSON `json:"items"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	if len(body.Tracks.Items) == 0 {
		return nil, nil
	}
	t := body.Tracks.Items[0].toTrack()
	return &t, nil
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/me", nil, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &u, nil
}

// CreatePlaylist creates a playlist owned by the given Spotify user.
func (c *Client) CreatePlaylist(ctx context.Context, spotifyUserID, name, description string, public bool) (*Playlist, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"name":        name,
		"description": description,
		"public":      public,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(spotifyUserID)+"/playlists", nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		ID           string `json:"id"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	return &Playlist{ID: body.ID, URL: body.ExternalURLs.Spotify}, nil
}

// AddPlaylistTracks appends track URIs to a playlist.
func (c *Client) AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{"uris": uris})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/playlists/"+url.PathEscape(playlistID)+"/tracks", nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}
