package flickr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"tourist-go/internal/model"
)

type searchResponse struct {
	Stat    string       `json:"stat"`
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Photos  *photosBlock `json:"photos"`
}

type photosBlock struct {
	Page    flexInt       `json:"page"`
	Pages   flexInt       `json:"pages"`
	PerPage flexInt       `json:"perpage"`
	Total   flexInt       `json:"total"`
	Photo   []photoRecord `json:"photo"`
}

type photoRecord struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	Secret   string `json:"secret"`
	Server   string `json:"server"`
	Farm     int    `json:"farm"`
	Title    string `json:"title"`
	IsPublic int    `json:"ispublic"`
	IsFriend int    `json:"isfriend"`
	IsFamily int    `json:"isfamily"`
}

func (b *photosBlock) toModel() *model.PhotoPage {
	page := &model.PhotoPage{
		Page:    int(b.Page),
		Pages:   int(b.Pages),
		PerPage: int(b.PerPage),
		Total:   int(b.Total),
		Photos:  make([]model.PhotoDescriptor, 0, len(b.Photo)),
	}
	for _, p := range b.Photo {
		page.Photos = append(page.Photos, model.PhotoDescriptor{
			ID:       p.ID,
			Owner:    p.Owner,
			Secret:   p.Secret,
			Server:   p.Server,
			Farm:     p.Farm,
			Title:    p.Title,
			IsPublic: p.IsPublic,
			IsFriend: p.IsFriend,
			IsFamily: p.IsFamily,
		})
	}
	return page
}

// flexInt decodes a JSON number or a string holding a number.
// Flickr has sent both for the same fields.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parsing %q as integer: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
