package utils

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFilename is used when neither the server nor the URL suggests a name
const DefaultFilename = "download.bin"

// ExtractURLPath returns the host joined with the directory part of the URL path.
// Example: https://example.com/a/b/file.zip -> example.com/a/b
func ExtractURLPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	urlPath := strings.TrimPrefix(parsed.Path, "/")
	idx := strings.LastIndex(urlPath, "/")
	if idx <= 0 {
		return parsed.Host, nil
	}

	return filepath.Join(parsed.Host, filepath.FromSlash(urlPath[:idx])), nil
}

// FilenameFromURL returns the last path segment of rawURL, or "" if there is none.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	base := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return SanitizeFilename(base)
}

// SanitizeFilename strips directory components so a server-suggested name can
// never escape the download directory.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
