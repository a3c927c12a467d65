package tourist

import (
	"context"

	"tourist-go/internal/model"
)

// PhotoService searches a remote photo service by location.
type PhotoService interface {
	// SearchPhotos returns one page of photos near the given coordinates.
	// A page <= 0 requests the service's default page.
	// Failures are returned as *FetchError.
	SearchPhotos(ctx context.Context, latitude, longitude float64, page int) (*model.PhotoPage, error)

	// ImageURL returns the download URL for a photo descriptor.
	ImageURL(d model.PhotoDescriptor) string
}

// ImageFetcher downloads and validates image data.
// Implementations do no caching and no retries.
type ImageFetcher interface {
	// Fetch returns the image bytes at url. Failures are returned as *FetchError.
	Fetch(ctx context.Context, url string) ([]byte, error)
}
