// Package normalize canonicalizes free-form URLs and host strings into the
// lower-case hostname used as the resolution key.
package normalize

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

// Browser-internal and extension page schemes. These never resolve.
var unsupportedSchemes = []string{
	"chrome",
	"chrome-extension",
	"chrome-search",
	"chrome-untrusted",
	"edge",
	"about",
	"moz-extension",
	"brave",
	"opera",
	"vivaldi",
	"view-source",
	"devtools",
}

var profile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(true),
)

// Domain returns the canonical host for raw. It fails with a
// *traffic.DomainError wrapping traffic.ErrUnsupportedScheme for browser
// internal pages, and traffic.ErrInvalidDomain when no usable host exists.
func Domain(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", invalid(raw, "a domain or URL is required")
	}
	if scheme, ok := schemeOf(input); ok && isUnsupported(scheme) {
		return "", &traffic.DomainError{
			Err:     traffic.ErrUnsupportedScheme,
			Domain:  raw,
			Message: "browser internal pages have no traffic data",
		}
	}

	host, err := hostOf(input)
	if err != nil || host == "" {
		return "", invalid(raw, "no hostname could be parsed")
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return "", invalid(raw, "IP addresses are not ranked")
	}

	ascii, err := profile.ToASCII(host)
	if err != nil {
		return "", invalid(raw, "hostname contains invalid characters")
	}
	ascii = stripWWW(ascii)
	if !strings.Contains(ascii, ".") {
		return "", invalid(raw, "hostname must include a top-level domain")
	}
	return ascii, nil
}

// stripWWW removes leading www. labels while a registrable name remains.
func stripWWW(host string) string {
	for strings.HasPrefix(host, "www.") && strings.Contains(host[len("www."):], ".") {
		host = host[len("www."):]
	}
	return host
}

func schemeOf(input string) (string, bool) {
	idx := strings.Index(input, ":")
	if idx <= 0 {
		return "", false
	}
	scheme := strings.ToLower(input[:idx])
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '+' && r != '-' && r != '.' {
			return "", false
		}
	}
	return scheme, true
}

func isUnsupported(scheme string) bool {
	for _, s := range unsupportedSchemes {
		if scheme == s {
			return true
		}
	}
	return false
}

func hostOf(input string) (string, error) {
	if !strings.Contains(input, "://") {
		input = "http://" + input
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", err //nolint:wrapcheck // mapped to ErrInvalidDomain by caller
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Hostname(), nil
	default:
		return "", nil
	}
}

func invalid(raw, msg string) error {
	return &traffic.DomainError{Err: traffic.ErrInvalidDomain, Domain: raw, Message: msg}
}
