// Package prefs persists user preferences between launches.
package prefs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"

	"tourist-go/internal/model"
)

type document struct {
	Region *model.Region `toml:"region,omitempty"`
}

// File is a TOML preferences file on fs.
type File struct {
	fs       afero.Fs
	path     string
	validate *validator.Validate
}

// NewFile returns a handle for the preferences file at path.
func NewFile(fs afero.Fs, path string) *File {
	return &File{fs: fs, path: path, validate: validator.New()}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) read() (document, error) {
	var doc document
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("reading preferences: %w", err)
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return doc, fmt.Errorf("decoding preferences %s: %w", f.path, err)
	}
	return doc, nil
}

// LoadRegion returns the saved map region. ok is false when none has been saved.
func (f *File) LoadRegion() (region model.Region, ok bool, err error) {
	doc, err := f.read()
	if err != nil {
		return model.Region{}, false, err
	}
	if doc.Region == nil {
		return model.Region{}, false, nil
	}
	if err := f.validate.Struct(doc.Region); err != nil {
		return model.Region{}, false, fmt.Errorf("invalid saved region: %w", err)
	}
	return *doc.Region, true, nil
}

// SaveRegion replaces the saved map region.
func (f *File) SaveRegion(region model.Region) error {
	if err := f.validate.Struct(region); err != nil {
		return fmt.Errorf("invalid region: %w", err)
	}

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Region = &region

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	return f.writeAtomic(buf.Bytes())
}

func (f *File) writeAtomic(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := f.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}

	tmp, err := afero.TempFile(f.fs, dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		f.fs.Remove(tmpPath)
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := f.fs.Rename(tmpPath, f.path); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}
