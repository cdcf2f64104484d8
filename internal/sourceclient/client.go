// Package sourceclient implements the Library Source Adapter: a read-only
// facade over an external Subsonic-style music server. It owns all source
// credentials and is the only component that speaks the source's wire
// protocol.
package sourceclient

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/broadcast-engine/stationcast/internal/track"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
)

// Config carries the source connection details. The adapter owns these; no
// other component is handed the password.
type Config struct {
	BaseURL    string
	Username   string
	Password   string
	ClientID   string
	APIVersion string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIVersion == "" {
		c.APIVersion = "1.16.1"
	}
	if c.ClientID == "" {
		c.ClientID = "stationcast"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Client is the Library Source Adapter (component A). It is safe for
// concurrent use: the salted-token scheme means there is no shared mutable
// auth state to guard, only a shared connection pool.
type Client struct {
	cfg    Config
	http   *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

// New builds a Client against the given source configuration.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)

	settings := gobreaker.Settings{
		Name:        "source-adapter",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("source adapter circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[*resty.Response](settings),
	}
}

// authParams returns the query parameters every Subsonic-style call must
// carry: a fresh random salt and hash(password || salt) per call — no
// long-lived token is ever stored.
func (c *Client) authParams() map[string]string {
	salt := randomSalt()
	token := md5Hex(c.cfg.Password + salt)
	return map[string]string{
		"u": c.cfg.Username,
		"t": token,
		"s": salt,
		"v": c.cfg.APIVersion,
		"c": c.cfg.ClientID,
		"f": "json",
	}
}

func randomSalt() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// subsonicEnvelope is the common wrapper every Subsonic-style JSON response
// carries.
type subsonicEnvelope struct {
	SubsonicResponse struct {
		Status string `json:"status"`
		Error  struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		SearchResult3 struct {
			Song []songDTO `json:"song"`
		} `json:"searchResult3"`
		Genres struct {
			Genre []struct {
				Value string `json:"value"`
			} `json:"genre"`
		} `json:"genres"`
		SongsByGenre struct {
			Song []songDTO `json:"song"`
		} `json:"songsByGenre"`
	} `json:"subsonic-response"`
}

type songDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Year     int    `json:"year"`
	Duration int    `json:"duration"`
	Path     string `json:"path"`
	Genre    string `json:"genre"`
}

func (s songDTO) toTrack() *track.Track {
	t := &track.Track{
		ID:       s.ID,
		Title:    s.Title,
		Artist:   s.Artist,
		Album:    s.Album,
		Year:     s.Year,
		Duration: s.Duration,
		Path:     s.Path,
	}
	if s.Genre != "" {
		t.Genres = []string{s.Genre}
	}
	return t
}

// doWithBreaker issues the request through the circuit breaker, classifying
// network-level failures as transient for ReadyToTrip accounting.
func (c *Client) doWithBreaker(ctx context.Context, fn func() (*resty.Response, error)) (*resty.Response, error) {
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return resp, fmt.Errorf("source returned status %d", resp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.Wrap(errs.KindSourceUnavailable, "source adapter circuit open", err)
		}
		return resp, classifyTransportError(err)
	}
	return resp, nil
}

func classifyTransportError(err error) error {
	return errs.Wrap(errs.KindSourceUnavailable, "source request failed", err)
}

// classifyEnvelope inspects a decoded subsonic envelope's status/error code
// and returns a classified error, or nil if the call succeeded.
func classifyEnvelope(env subsonicEnvelope) error {
	if env.SubsonicResponse.Status != "failed" {
		return nil
	}
	code := env.SubsonicResponse.Error.Code
	msg := env.SubsonicResponse.Error.Message
	switch code {
	case 40, 41:
		return errs.New(errs.KindSourceUnauthorized, msg)
	case 70:
		return errs.New(errs.KindNotFound, msg)
	case 0, 10, 20, 30:
		return errs.New(errs.KindValidation, msg)
	default:
		return errs.New(errs.KindSourceUnavailable, msg)
	}
}

// Ping checks source reachability and credentials.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doWithBreaker(ctx, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(c.authParams()).
			Get("/rest/ping")
	})
	if err != nil {
		return err
	}
	var env subsonicEnvelope
	if err := decodeJSON(resp, &env); err != nil {
		return errs.Wrap(errs.KindValidation, "malformed ping response", err)
	}
	return classifyEnvelope(env)
}

func decodeJSON(resp *resty.Response, v interface{}) error {
	return json.Unmarshal(resp.Body(), v)
}

// CoverArt fetches cover art bytes for a track.
func (c *Client) CoverArt(ctx context.Context, trackID string) ([]byte, error) {
	resp, err := c.doWithBreaker(ctx, func() (*resty.Response, error) {
		params := c.authParams()
		params["id"] = trackID
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/rest/getCoverArt")
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == 404 {
		return nil, errs.New(errs.KindNotFound, "cover art not found")
	}
	return resp.Body(), nil
}

// OpenStream returns a reader over the raw audio bytes for trackID. The
// caller is responsible for closing the returned stream.
func (c *Client) OpenStream(ctx context.Context, trackID string) (io.ReadCloser, error) {
	params := c.authParams()
	params["id"] = trackID

	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParams(params).
		Get("/rest/stream")
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if resp.StatusCode() == 404 {
		resp.RawBody().Close()
		return nil, errs.New(errs.KindNotFound, "track not found at source")
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		resp.RawBody().Close()
		return nil, errs.New(errs.KindSourceUnauthorized, "source rejected credentials")
	}
	if resp.StatusCode() >= 500 {
		resp.RawBody().Close()
		return nil, errs.New(errs.KindSourceUnavailable, fmt.Sprintf("source returned %d", resp.StatusCode()))
	}
	return resp.RawBody(), nil
}

// Genres lists the genre vocabulary known to the source.
func (c *Client) Genres(ctx context.Context) ([]string, error) {
	resp, err := c.doWithBreaker(ctx, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(c.authParams()).
			Get("/rest/getGenres")
	})
	if err != nil {
		return nil, err
	}
	var env subsonicEnvelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "malformed genres response", err)
	}
	if err := classifyEnvelope(env); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(env.SubsonicResponse.Genres.Genre))
	for _, g := range env.SubsonicResponse.Genres.Genre {
		out = append(out, g.Value)
	}
	return out, nil
}

// Search performs search3 with the first of genres as its query ("*" when
// genres is empty) and returns at most limit track records; genres after
// the first are not sent. Transient failures are retried with exponential
// backoff.
func (c *Client) Search(ctx context.Context, genres []string, limit int) ([]*track.Track, error) {
	return withRetry(ctx, func() ([]*track.Track, error) {
		return c.searchOnce(ctx, genres, limit)
	})
}

func (c *Client) searchOnce(ctx context.Context, genres []string, limit int) ([]*track.Track, error) {
	query := "*"
	if len(genres) > 0 {
		query = genres[0]
	}

	resp, err := c.doWithBreaker(ctx, func() (*resty.Response, error) {
		params := c.authParams()
		params["query"] = query
		params["songCount"] = fmt.Sprintf("%d", limit)
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/rest/search3")
	})
	if err != nil {
		return nil, err
	}
	var env subsonicEnvelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "malformed search response", err)
	}
	if err := classifyEnvelope(env); err != nil {
		return nil, err
	}

	out := make([]*track.Track, 0, len(env.SubsonicResponse.SearchResult3.Song))
	for _, s := range env.SubsonicResponse.SearchResult3.Song {
		out = append(out, s.toTrack())
	}
	return out, nil
}

// pageSize is the number of songs requested per getSongs call during a
// full-catalog page walk.
const pageSize = 500

// listAllResult bundles ListAll's two return values so withRetry's single
// generic result type can carry both.
type listAllResult struct {
	tracks []*track.Track
	next   string
}

// ListAll implements track.Source: it pages through getSongs using an
// integer offset encoded as the cursor string. Transient failures are
// retried with exponential backoff.
func (c *Client) ListAll(ctx context.Context, cursor string) ([]*track.Track, string, error) {
	res, err := withRetry(ctx, func() (listAllResult, error) {
		tracks, next, err := c.listAllOnce(ctx, cursor)
		return listAllResult{tracks: tracks, next: next}, err
	})
	if err != nil {
		return nil, "", err
	}
	return res.tracks, res.next, nil
}

func (c *Client) listAllOnce(ctx context.Context, cursor string) ([]*track.Track, string, error) {
	offset := parseOffset(cursor)

	resp, err := c.doWithBreaker(ctx, func() (*resty.Response, error) {
		params := c.authParams()
		params["type"] = "alphabeticalByName"
		params["size"] = fmt.Sprintf("%d", pageSize)
		params["offset"] = fmt.Sprintf("%d", offset)
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/rest/getSongs")
	})
	if err != nil {
		return nil, "", err
	}

	var env subsonicEnvelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, "", errs.Wrap(errs.KindValidation, "malformed getSongs response", err)
	}
	if err := classifyEnvelope(env); err != nil {
		return nil, "", err
	}

	songs := env.SubsonicResponse.SongsByGenre.Song
	out := make([]*track.Track, 0, len(songs))
	for _, s := range songs {
		out = append(out, s.toTrack())
	}

	next := ""
	if len(songs) == pageSize {
		next = fmt.Sprintf("%d", offset+pageSize)
	}
	return out, next, nil
}

func parseOffset(cursor string) int {
	if cursor == "" {
		return 0
	}
	n := 0
	for _, r := range cursor {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
