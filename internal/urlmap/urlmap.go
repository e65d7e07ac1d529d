// Package urlmap resolves references, classifies them by domain scope and
// maps absolute URLs onto the on-disk mirror layout.
package urlmap

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrMalformedURL is returned for references that cannot be parsed.
	ErrMalformedURL = errors.New("malformed url")
	// ErrPathEscape is returned when a URL would map outside the output root.
	ErrPathEscape = errors.New("local path escapes output root")
)

const indexFile = "index.html"

// Resolve composes reference against base following RFC 3986.
func Resolve(reference, base string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %v", ErrMalformedURL, base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(reference))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, reference, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// Canonical returns the form of rawURL used for deduplication: lower-case
// scheme and host, default ports dropped, fragment removed and an empty path
// replaced by "/".
func Canonical(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = hostKey(u)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Host returns the canonical host (with a non-default port) of rawURL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}
	return hostKey(u), nil
}

// IsInScope reports whether rawURL belongs to baseDomain. URLs without a host
// component are in scope.
func IsInScope(rawURL, baseDomain string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := hostKey(u)
	return host == "" || host == strings.ToLower(baseDomain)
}

// LocalPath maps rawURL onto a file below outputRoot. See Mapper.LocalPath.
func LocalPath(rawURL, baseDomain, outputRoot string) (string, error) {
	return Mapper{BaseDomain: baseDomain, OutputRoot: outputRoot}.LocalPath(rawURL)
}

// Mapper holds the crawl-wide inputs of the URL to path mapping.
type Mapper struct {
	BaseDomain string
	OutputRoot string
}

// SiteDir is the directory that holds the mirror of the base domain.
func (m Mapper) SiteDir() string {
	return filepath.Join(filepath.Clean(m.OutputRoot), hostDir(strings.ToLower(m.BaseDomain)))
}

// LocalPath returns the file that rawURL is saved to. Paths that are empty or
// end in a slash get index.html, as do final segments without an extension.
// Query and fragment are ignored, so URLs differing only in those collide.
// External hosts are nested below the base domain directory.
func (m Mapper) LocalPath(rawURL string) (string, error) {
	rel, err := m.relative(rawURL)
	if err != nil {
		return "", err
	}
	root := filepath.Clean(m.OutputRoot)
	full := filepath.Join(m.SiteDir(), filepath.FromSlash(rel))
	check, err := filepath.Rel(root, full)
	if err != nil || !filepath.IsLocal(check) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rawURL)
	}
	return full, nil
}

// Reference returns the root-relative reference, relative to the base domain
// directory, that points at the local copy of rawURL.
func (m Mapper) Reference(rawURL string) (string, error) {
	rel, err := m.relative(rawURL)
	if err != nil {
		return "", err
	}
	return (&url.URL{Path: "/" + rel}).EscapedPath(), nil
}

// Relative returns the slash separated path of rawURL's local copy relative
// to the output root.
func (m Mapper) Relative(rawURL string) (string, error) {
	rel, err := m.relative(rawURL)
	if err != nil {
		return "", err
	}
	return path.Join(hostDir(strings.ToLower(m.BaseDomain)), rel), nil
}

func (m Mapper) relative(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}
	if u.Opaque != "" {
		return "", fmt.Errorf("%w: %q has no path", ErrMalformedURL, rawURL)
	}
	p := strings.ReplaceAll(u.Path, `\`, "/")
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrMalformedURL, rawURL)
	}
	switch {
	case p == "" || strings.HasSuffix(p, "/"):
		p += indexFile
	case path.Ext(path.Base(p)) == "":
		p += "/" + indexFile
	}

	inner := path.Clean(strings.TrimLeft(p, "/"))
	if inner == "." {
		inner = indexFile
	}
	if inner == ".." || strings.HasPrefix(inner, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rawURL)
	}

	host := hostKey(u)
	if host == "" || host == strings.ToLower(m.BaseDomain) {
		return inner, nil
	}
	dir := hostDir(host)
	if dir == "." || dir == ".." || strings.ContainsAny(dir, `/\`) {
		return "", fmt.Errorf("%w: host %q", ErrPathEscape, host)
	}
	return dir + "/" + inner, nil
}

func hostKey(u *url.URL) string {
	host := strings.ToLower(u.Host)
	port := u.Port()
	if port == "" {
		return host
	}
	if (port == "80" && strings.EqualFold(u.Scheme, "http")) || (port == "443" && strings.EqualFold(u.Scheme, "https")) {
		return strings.TrimSuffix(host, ":"+port)
	}
	return host
}

// hostDir turns a host into a directory name; ports are kept as "_port".
func hostDir(host string) string {
	return strings.ReplaceAll(host, ":", "_")
}
