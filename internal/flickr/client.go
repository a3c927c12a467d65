// Package flickr implements tourist.PhotoService against the Flickr REST API.
package flickr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tourist-go/internal/config"
	"tourist-go/internal/model"
	"tourist-go/internal/tourist"
)

const searchMethod = "flickr.photos.search"

// DefaultImageSize is the Flickr size suffix for a 150x150 square.
const DefaultImageSize = "q"

// maxBodySize bounds how much of a search response is read.
const maxBodySize = 4 << 20

// Client searches Flickr for geotagged photos.
type Client struct {
	endpoint  string
	apiKey    string
	perPage   int
	radius    float64
	imageSize string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient builds a client from the flickr and images config sections.
// If httpClient is nil one is created with the configured timeout.
func NewClient(cfg config.FlickrConfig, imageSize string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	if imageSize == "" {
		imageSize = DefaultImageSize
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		perPage:   cfg.PerPage,
		radius:    cfg.Radius,
		imageSize: imageSize,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// searchURL builds the request URL. page <= 0 leaves the page parameter out.
func (c *Client) searchURL(latitude, longitude float64, page int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", c.endpoint, err)
	}

	q := u.Query()
	q.Set("method", searchMethod)
	q.Set("api_key", c.apiKey)
	q.Set("lat", strconv.FormatFloat(latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(longitude, 'f', -1, 64))
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("radius", strconv.FormatFloat(c.radius, 'f', -1, 64))
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SearchPhotos requests one page of photos within the configured radius of a
// coordinate. Failures are returned as *tourist.FetchError.
func (c *Client) SearchPhotos(ctx context.Context, latitude, longitude float64, page int) (*model.PhotoPage, error) {
	reqURL, err := c.searchURL(latitude, longitude, page)
	if err != nil {
		return nil, tourist.NetworkError(c.endpoint, err)
	}
	// The API key is not included in error messages.
	display := redact(reqURL)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, tourist.NetworkError(display, fmt.Errorf("waiting for rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, tourist.NetworkError(display, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tourist.NetworkError(display, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, tourist.NetworkError(display, fmt.Errorf("unexpected status: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, tourist.NetworkError(display, fmt.Errorf("reading response: %w", err))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, tourist.DecodeError(display, err)
	}
	if sr.Stat == "fail" {
		return nil, tourist.NetworkError(display, fmt.Errorf("flickr error %d: %s", sr.Code, sr.Message))
	}
	if sr.Stat != "ok" || sr.Photos == nil {
		return nil, tourist.DecodeError(display, fmt.Errorf("unexpected response: stat %q", sr.Stat))
	}

	return sr.Photos.toModel(), nil
}

// ImageURL returns the download URL of a photo at the configured size.
func (c *Client) ImageURL(d model.PhotoDescriptor) string {
	return ImageURL(d.Server, d.ID, d.Secret, c.imageSize)
}

// ImageURL builds a static image URL for a photo.
func ImageURL(server, id, secret, size string) string {
	return fmt.Sprintf("https://live.staticflickr.com/%s/%s_%s_%s.jpg", server, id, secret, size)
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Compile-time check that Client implements tourist.PhotoService interface
var _ tourist.PhotoService = (*Client)(nil)
