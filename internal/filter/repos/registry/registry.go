// Package registry loads named filter definitions from YAML, JSON, or TOML
// files. A definitions file looks like:
//
//	filters:
//	  ugc:
//	    filter_url: https://cdn.example.com/filters/ugc.bin
//	    checksum_url: https://cdn.example.com/filters/ugc.json
package registry

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/multierr"

	"github.com/baronrustamov/bloomsync/internal/filter/common/utils"
	"github.com/baronrustamov/bloomsync/internal/filter/domain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported definitions file format")
	ErrNoFilters         = errors.New("no filters defined")
	ErrDuplicateName     = errors.New("duplicate filter name")
	ErrInvalidName       = errors.New("invalid filter name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// definition is one entry under the top-level "filters" key.
type definition struct {
	FilterURL   string `koanf:"filter_url" validate:"required,filter_url"`
	ChecksumURL string `koanf:"checksum_url" validate:"required,filter_url"`
}

// validFilterURL accepts absolute http(s) URLs whose host survives IDNA
// lookup conversion and whose path names a file.
func validFilterURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if _, err := utils.CanonicalHost(u.Hostname()); err != nil {
		return false
	}
	_, err = domain.Source{FilterURL: raw}.CacheFileName()
	return err == nil
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("filter_url", validFilterURL)
}

func parserFor(path string) (koanf.Parser, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), true
	case ".json":
		return json.Parser(), true
	case ".toml":
		return toml.Parser(), true
	default:
		return nil, false
	}
}

// Load reads definitions from path, which may be a single file or a directory
// of definition files.
func Load(path string) ([]domain.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadDirectory(path)
	}
	return LoadFile(path)
}

// LoadFile parses and validates a single definitions file.
func LoadFile(path string) ([]domain.Source, error) {
	parser, ok := parserFor(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load definitions file %s: %w", path, err)
	}

	defs := map[string]definition{}
	if err := k.Unmarshal("filters", &defs); err != nil {
		return nil, fmt.Errorf("failed to decode filters in %s: %w", path, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFilters, path)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	sources := make([]domain.Source, 0, len(defs))
	for name, d := range defs {
		if !validName.MatchString(name) {
			return nil, fmt.Errorf("%w %q in %s", ErrInvalidName, name, path)
		}
		if err := validate.Struct(&d); err != nil {
			return nil, fmt.Errorf("filter %q in %s: %w", name, path, err)
		}
		sources = append(sources, domain.Source{Name: name, FilterURL: d.FilterURL, ChecksumURL: d.ChecksumURL})
	}
	sortSources(sources)
	return sources, nil
}

// LoadDirectory loads every supported file directly under dir. Files with
// other extensions are skipped. All file errors are reported together.
func LoadDirectory(dir string) ([]domain.Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var (
		sources []domain.Source
		errs    error
		seen    = map[string]string{}
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, ok := parserFor(path); !ok {
			continue
		}
		got, err := LoadFile(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, s := range got {
			if prev, dup := seen[s.Name]; dup {
				errs = multierr.Append(errs, fmt.Errorf("%w %q in %s and %s", ErrDuplicateName, s.Name, prev, path))
				continue
			}
			seen[s.Name] = path
			sources = append(sources, s)
		}
	}
	if errs != nil {
		return nil, errs
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFilters, dir)
	}
	sortSources(sources)
	return sources, nil
}

func sortSources(s []domain.Source) {
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
}
