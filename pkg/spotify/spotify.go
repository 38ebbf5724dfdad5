package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/driftfm/driftfm/pkg/radio"
	"github.com/driftfm/driftfm/pkg/ratelimit"
	"github.com/zmb3/spotify/v2"
)

// Client resolves track queries against the Spotify search API using the
// client-credentials flow.
type Client struct {
	client          *http.Client
	debug           bool
	ratelimit       ratelimit.Lock
	baseURL         string
	authURL         string
	clientID        string
	clientSecret    string
	token           string
	tokenExpiration time.Time
}

type Config struct {
	Wait         time.Duration
	Debug        bool
	Client       *http.Client
	ClientID     string
	ClientSecret string

	// BaseURL and AuthURL override the Spotify endpoints in tests.
	BaseURL string
	AuthURL string
}

func New(cfg *Config) *Client {
	wait := cfg.Wait
	if wait == 0 {
		wait = 1 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.spotify.com/v1"
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = "https://accounts.spotify.com/api/token"
	}
	return &Client{
		client:       client,
		ratelimit:    ratelimit.New(wait),
		debug:        cfg.Debug,
		baseURL:      baseURL,
		authURL:      authURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

func (c *Client) Start(ctx context.Context) error {
	if c.clientID == "" || c.clientSecret == "" {
		return errors.New("spotify: missing client credentials")
	}
	return c.Auth(ctx)
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Auth obtains a client-credentials token, reusing the cached one while it
// is still valid.
func (c *Client) Auth(ctx context.Context) error {
	if c.token != "" && time.Now().Before(c.tokenExpiration) {
		return nil
	}
	form := url.Values{}
	form.Add("grant_type", "client_credentials")

	var resp authResponse
	if _, err := c.do(ctx, "POST", c.authURL, form, &resp); err != nil {
		return err
	}
	c.token = resp.AccessToken
	c.tokenExpiration = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return nil
}

// Resolve searches for a "title artist" query and maps the best hit to
// track metadata. A miss returns (nil, nil): the caller falls back to
// placeholder metadata.
func (c *Client) Resolve(ctx context.Context, query string) (*radio.TrackInfo, error) {
	if err := c.Auth(ctx); err != nil {
		return nil, err
	}
	var resp spotify.SearchResult
	u := "search?q=" + url.QueryEscape(query) + "&type=track&limit=1"
	if _, err := c.do(ctx, "GET", u, nil, &resp); err != nil {
		return nil, fmt.Errorf("spotify: couldn't search track: %w", err)
	}
	if resp.Tracks == nil || len(resp.Tracks.Tracks) == 0 {
		return nil, nil
	}
	t := resp.Tracks.Tracks[0]
	info := &radio.TrackInfo{
		Title:      t.Name,
		Album:      t.Album.Name,
		PreviewURL: t.PreviewURL,
		Duration:   t.TimeDuration(),
	}
	if len(t.Artists) > 0 {
		info.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		info.CoverURL = t.Album.Images[0].URL
	}
	return info, nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

var backoff = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			c.log("spotify: retrying... %v", err)
		}
		var b []byte
		b, err = c.doAttempt(ctx, method, path, in, out)
		if err == nil {
			return b, nil
		}
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		// Temporary network errors are retried right away
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		var retry bool
		var wait bool
		var errStatus errStatusCode
		if errors.As(err, &errStatus) {
			switch int(errStatus) {
			case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooManyRequests:
				retry = true
				wait = true
			case http.StatusUnauthorized:
				c.token = ""
				if err := c.Auth(ctx); err != nil {
					return nil, err
				}
				retry = true
			default:
				return nil, err
			}
		}
		if !retry {
			return nil, err
		}
		if wait {
			idx := attempts - 1
			if idx >= len(backoff) {
				idx = len(backoff) - 1
			}
			t := time.NewTimer(backoff[idx])
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
}

type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("%d", e)
}

func (c *Client) doAttempt(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body []byte
	var reqBody io.Reader
	var newAuth bool
	if f, ok := in.(url.Values); ok {
		reqBody = strings.NewReader(f.Encode())
		newAuth = true
	} else if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("spotify: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log("spotify: do %s %s", method, path)

	// Relative paths are resolved against the API base
	u := path
	if !strings.HasPrefix(path, "http") {
		u = fmt.Sprintf("%s/%s", c.baseURL, path)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("spotify: couldn't create request: %w", err)
	}
	if newAuth {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.clientID, c.clientSecret)
	} else {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("spotify: couldn't read response body: %w", err)
	}
	c.log("spotify: response %s %s %d", method, path, resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 100 {
			errMessage = errMessage[:100] + "..."
		}
		return nil, fmt.Errorf("spotify: %s %s returned (%s): %w", method, u, errMessage, errStatusCode(resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("spotify: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}
