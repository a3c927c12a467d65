package model

import "time"

// Entity is a persisted record tracked by the entity store.
// Revision increases every time a change to the record is saved.
type Entity interface {
	EntityID() string
	EntityRevision() int64
}

// Pin represents a saved geographic location chosen by the user.
type Pin struct {
	ID        string // UUID
	Latitude  float64
	Longitude float64
	Name      string // Optional display label
	Page      int16  // Last fetched photo page, 0 before the first fetch
	Pages     int16  // Total pages reported by the photo service, 0 before the first fetch
	Revision  int64
	CreatedAt time.Time
}

func (p *Pin) EntityID() string      { return p.ID }
func (p *Pin) EntityRevision() int64 { return p.Revision }

// Fetched reports whether a photo page has ever been fetched for this pin.
func (p *Pin) Fetched() bool {
	return p.Pages > 0
}

// Photo is one image associated with a Pin. ImageBytes stays nil until the
// image has been downloaded and persisted.
type Photo struct {
	ID             string // UUID
	PinID          string // Foreign key to Pin
	RemoteImageURL string
	ImageBytes     []byte
	Revision       int64
	CreatedAt      time.Time
}

func (p *Photo) EntityID() string      { return p.ID }
func (p *Photo) EntityRevision() int64 { return p.Revision }

// Hydrated reports whether the image bytes have been downloaded.
func (p *Photo) Hydrated() bool {
	return p.ImageBytes != nil
}

// PhotoDescriptor is one photo entry from a remote search response.
// It is only used to build a Photo's image URL and is never persisted.
type PhotoDescriptor struct {
	ID       string
	Owner    string
	Secret   string
	Server   string
	Farm     int
	Title    string
	IsPublic int
	IsFriend int
	IsFamily int
}

// PhotoPage is one page of search results along with pagination metadata.
type PhotoPage struct {
	Photos  []PhotoDescriptor
	Page    int
	Pages   int
	PerPage int
	Total   int
}

// Region is the visible map area, stored as a preference between launches.
type Region struct {
	Latitude       float64 `toml:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64 `toml:"longitude" validate:"gte=-180,lte=180"`
	LatitudeDelta  float64 `toml:"latitude_delta" validate:"gte=0,lte=180"`
	LongitudeDelta float64 `toml:"longitude_delta" validate:"gte=0,lte=360"`
}

// Coordinate is a latitude/longitude pair submitted for a new pin.
type Coordinate struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

// Operation records one CLI command that mutated the store.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}
