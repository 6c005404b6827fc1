package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

// Extensions that mark a path as a file rather than a directory-style page.
// Paths ending in one of these never get a trailing slash appended.
var fileExtensions = map[string]struct{}{
	".html": {}, ".htm": {}, ".xhtml": {}, ".php": {}, ".asp": {}, ".aspx": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ico": {}, ".bmp": {}, ".txt": {}, ".md": {}, ".xml": {}, ".json": {},
	".rss": {}, ".atom": {}, ".css": {}, ".js": {}, ".mp3": {}, ".mp4": {},
	".ogg": {}, ".wav": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
}

// NormalizeURL standardizes a URL so that equivalent spellings collapse to
// one frontier entry. It lowercases the scheme and host (punycoding
// international hostnames), removes default ports and fragments, and applies
// the trailing-slash convention: directory-style paths end in "/", paths
// with a known file extension do not.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" && u.Host == "" {
		// Bare hostnames like "example.neocities.org" are common seeds.
		u, err = url.Parse("https://" + strings.TrimSpace(rawURL))
		if err != nil {
			return "", fmt.Errorf("parse url: %w", err)
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	u.Fragment = ""

	if u.Path == "" {
		u.Path = "/"
	} else if !strings.HasSuffix(u.Path, "/") && !hasFileExtension(u.Path) {
		u.Path += "/"
	}

	return u.String(), nil
}

func hasFileExtension(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := fileExtensions[ext]
	return ok
}

// DedupKey reduces a normalized URL to the form used for visited-set
// comparisons: the query string is stripped, but the stored URL keeps it.
func DedupKey(normalized string) string {
	if i := strings.IndexByte(normalized, '?'); i >= 0 {
		return normalized[:i]
	}
	return normalized
}

// DomainOf returns the lowercase hostname of a URL, or "" if unparsable.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// FolderOf returns the throttle key for the per-subfolder cap:
// the domain joined with the first path segment.
func FolderOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segment := ""
	trimmed := strings.TrimPrefix(u.Path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		segment = trimmed[:i]
	} else {
		segment = trimmed
	}
	return strings.ToLower(u.Hostname()) + "/" + segment
}

// ResolveRef resolves a possibly-relative href against a base URL and
// normalizes the result.
func ResolveRef(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	if strings.HasPrefix(href, "//") && base != nil && base.Scheme != "" {
		href = base.Scheme + ":" + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return NormalizeURL(ref.String())
}
