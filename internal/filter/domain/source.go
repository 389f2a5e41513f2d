package domain

import (
	"errors"
	"fmt"
	"net/url"
	"path"
)

// Source names a remote filter: where to fetch the binary and its checksum manifest.
type Source struct {
	Name        string
	FilterURL   string
	ChecksumURL string
}

var ErrNoCacheName = errors.New("filter URL has no usable last path component")

// CacheFileName returns the file name the filter is cached under: the last
// path component of FilterURL.
func (s Source) CacheFileName() (string, error) {
	u, err := url.Parse(s.FilterURL)
	if err != nil {
		return "", fmt.Errorf("parse filter url for %q: %w", s.Name, err)
	}
	base := path.Base(u.Path)
	switch base {
	case "", ".", "/", "..":
		return "", fmt.Errorf("%w: %q", ErrNoCacheName, s.FilterURL)
	}
	return base, nil
}
