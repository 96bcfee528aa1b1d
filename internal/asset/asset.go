// Package asset models the preview images the site renders next to external links.
// It owns the mapping from a page URL to its on-disk file and the size-based
// validity rule that decides whether a cached file can be reused.
package asset

import (
	"fmt"
	"net/url"
	"strings"
)

// Source is one external page registered for screenshotting. The URL is its identity.
type Source struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Local describes the on-disk state of a fetched Source.
type Local struct {
	Path      string
	SizeBytes int64
	Exists    bool
	Validated bool
}

// NewRegistry converts raw URLs into Sources, preserving order.
// Entries must be absolute http(s) URLs.
func NewRegistry(urls []string) ([]Source, error) {
	sources := make([]Source, 0, len(urls))
	for i, raw := range urls {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("registry entry %d: parse %q: %w", i, raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("registry entry %d: %q must use http or https", i, raw)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("registry entry %d: %q has no host", i, raw)
		}
		sources = append(sources, Source{URL: raw})
	}
	return sources, nil
}

// Collisions reports derived base names shared by more than one Source.
// Sharing a host is allowed (one screenshot per host), but callers usually want to know.
func Collisions(sources []Source) map[string][]string {
	byName := make(map[string][]string, len(sources))
	for _, src := range sources {
		name := BaseName(src.URL)
		byName[name] = append(byName[name], src.URL)
	}
	out := make(map[string][]string)
	for name, urls := range byName {
		if len(urls) > 1 {
			out[name] = urls
		}
	}
	return out
}
