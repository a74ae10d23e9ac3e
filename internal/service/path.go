package service

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	repeatedSlashes = regexp.MustCompile(`/{2,}`)
	versionSegment  = regexp.MustCompile(`^v\d+(\.\d+)?$`)
)

// NormalizePath rewrites an inbound path for the backend: percent-encoding is
// undone, repeated separators are collapsed and, when injectVersion is set,
// version is inserted after a leading /api/ unless a version segment is
// already there.
func NormalizePath(path, version string, injectVersion bool) string {
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	path = repeatedSlashes.ReplaceAllString(path, "/")

	if !injectVersion || version == "" || !strings.HasPrefix(path, "/api/") {
		return path
	}

	rest := strings.TrimPrefix(path, "/api/")
	first, _, _ := strings.Cut(rest, "/")
	if versionSegment.MatchString(first) {
		return path
	}
	return "/api/" + version + "/" + rest
}

// backendURL joins the parts of a backend URL. The path is expected to be
// normalized (unescaped) already.
func backendURL(scheme, host, path, rawQuery string) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: rawQuery,
	}
	return u.String()
}

// pageURL resolves a next_page cursor against host. Only host-relative
// cursors are accepted so the session token never leaves the backend host.
func pageURL(scheme, host, next string) (string, bool) {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "", false
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	return scheme + "://" + host + next, true
}
