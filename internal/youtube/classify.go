package youtube

import (
	"errors"
	"os/exec"
	"strings"

	"dualmind/internal/domain"
)

var notFoundMarkers = []string{
	"video unavailable",
	"private video",
	"this video is private",
	"has been removed",
	"http error 404",
	"does not exist",
	"this video is not available",
	"not available in your country",
}

var unsupportedMarkers = []string{
	"unsupported url",
	"is not a valid url",
	"sign in to confirm your age",
	"members-only",
	"join this channel",
	"premieres in",
	"this live event will begin",
}

// Classify maps a failed yt-dlp invocation to an error kind.
// Unrecognized failures count as network failures. A missing binary is internal.
func Classify(stderr string, err error) domain.ErrorKind {
	if errors.Is(err, exec.ErrNotFound) {
		return domain.ErrorKindInternal
	}

	text := strings.ToLower(stderr)
	if err != nil {
		text += "\n" + strings.ToLower(err.Error())
	}

	for _, marker := range notFoundMarkers {
		if strings.Contains(text, marker) {
			return domain.ErrorKindNotFound
		}
	}
	for _, marker := range unsupportedMarkers {
		if strings.Contains(text, marker) {
			return domain.ErrorKindUnsupported
		}
	}
	return domain.ErrorKindNetworkFailure
}

// lastErrorLine picks the most relevant "ERROR:" line from yt-dlp stderr.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return ""
}
