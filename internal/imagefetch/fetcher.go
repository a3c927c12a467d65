// Package imagefetch downloads photo images over HTTP.
package imagefetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/nfnt/resize"

	"tourist-go/internal/config"
	"tourist-go/internal/tourist"
)

// maxImageSize bounds how much of a response body is read.
const maxImageSize = 32 << 20

const jpegQuality = 85

// HTTPFetcher downloads an image, checks that it decodes, and optionally
// downscales it. It does no caching and no retries.
type HTTPFetcher struct {
	http         *http.Client
	maxDimension uint
}

// NewHTTPFetcher builds a fetcher from the images config section.
// If httpClient is nil one is created with the configured timeout.
func NewHTTPFetcher(cfg config.ImagesConfig, httpClient *http.Client) *HTTPFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	var maxDim uint
	if cfg.MaxDimension > 0 {
		maxDim = uint(cfg.MaxDimension)
	}
	return &HTTPFetcher{http: httpClient, maxDimension: maxDim}
}

// Fetch returns the image at url. Failures are returned as *tourist.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, tourist.NetworkError(url, err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, tourist.NetworkError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, tourist.NetworkError(url, fmt.Errorf("unexpected status: %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, tourist.NetworkError(url, fmt.Errorf("reading body: %w", err))
	}
	if len(data) > maxImageSize {
		return nil, tourist.DecodeError(url, fmt.Errorf("image larger than %d bytes", maxImageSize))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, tourist.DecodeError(url, err)
	}

	if !f.needsResize(img.Bounds()) {
		return data, nil
	}

	thumb := resize.Thumbnail(f.maxDimension, f.maxDimension, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, tourist.DecodeError(url, fmt.Errorf("re-encoding %s image: %w", format, err))
	}
	return buf.Bytes(), nil
}

func (f *HTTPFetcher) needsResize(b image.Rectangle) bool {
	if f.maxDimension == 0 {
		return false
	}
	return uint(b.Dx()) > f.maxDimension || uint(b.Dy()) > f.maxDimension
}

// Compile-time check that HTTPFetcher implements tourist.ImageFetcher interface
var _ tourist.ImageFetcher = (*HTTPFetcher)(nil)
