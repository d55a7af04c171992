package youtube

import (
	"net/url"
	"strings"
)

// ValidateURL accepts single-video YouTube links and returns the cleaned URL.
func ValidateURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.TrimSuffix(u.Path, "/")

	switch host {
	case "youtube.com", "music.youtube.com":
		if path == "/watch" && u.Query().Get("v") != "" {
			return u.String(), true
		}
		if rest, ok := strings.CutPrefix(path, "/shorts/"); ok && rest != "" && !strings.Contains(rest, "/") {
			return u.String(), true
		}
	case "youtu.be":
		id := strings.TrimPrefix(path, "/")
		if id != "" && !strings.Contains(id, "/") {
			return u.String(), true
		}
	}
	return "", false
}
