// Package screenshot builds requests against the third-party screenshot rendering API.
package screenshot

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the public microlink endpoint the site has always used.
const DefaultBaseURL = "https://api.microlink.io/"

// Endpoint describes the screenshot service: a base URL plus fixed query parameters.
// The target page is always passed as the "url" parameter.
type Endpoint struct {
	BaseURL string
	Params  map[string]string
}

// DefaultEndpoint returns the microlink endpoint configured to answer with the image itself.
func DefaultEndpoint() Endpoint {
	return Endpoint{
		BaseURL: DefaultBaseURL,
		Params: map[string]string{
			"screenshot": "true",
			"meta":       "false",
			"embed":      "screenshot.url",
		},
	}
}

// URLFor returns the service URL that renders target.
func (e Endpoint) URLFor(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("target url is required")
	}
	base := e.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse screenshot base url: %w", err)
	}
	q := u.Query()
	for k, v := range e.Params {
		q.Set(k, v)
	}
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
