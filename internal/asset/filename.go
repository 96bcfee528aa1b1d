package asset

import (
	"net/url"
	"strings"
)

const (
	// DefaultBaseName is used when a URL has no parsable authority.
	DefaultBaseName = "default"
	// DefaultExtension is the extension given to downloaded screenshots.
	DefaultExtension = ".png"
)

// BaseName derives the stable file stem for rawURL: its authority (host and
// optional port) with every "." replaced by "-".
func BaseName(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return DefaultBaseName
	}
	return strings.ReplaceAll(u.Host, ".", "-")
}

// Filename returns BaseName plus ext. An empty ext means DefaultExtension.
func Filename(rawURL, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return BaseName(rawURL) + ext
}
