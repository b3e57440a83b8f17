package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies a supported source site.
type Kind string

const (
	KindYouTube Kind = "youtube"
	KindTwitter Kind = "twitter"
)

// ErrUnsupportedSource is returned when a URL cannot be classified into any
// known source site.
var ErrUnsupportedSource = errors.New("unsupported source URL")

// ErrPlaylistURL is returned for playlist URLs, which the pipeline does not
// handle.
var ErrPlaylistURL = errors.New("playlist URLs are not supported")

// Source is the result of classifying a request URL. UserID and PostID are
// only set for KindTwitter.
type Source struct {
	Kind   Kind
	URL    string
	UserID string
	PostID string
}

// Classify parses rawURL and determines its source site. Twitter URLs must
// have the shape /{user}/status/{id}; their user and post identifiers are
// extracted. Unrecognized hosts or path shapes yield ErrUnsupportedSource.
// Classification never invokes external tools.
func Classify(rawURL string) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Source{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, rawURL)
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "mobile.")

	switch host {
	case "youtube.com", "youtu.be":
		return Source{Kind: KindYouTube, URL: rawURL}, nil
	case "twitter.com", "x.com":
		user, post, ok := parseStatusPath(u.Path)
		if !ok {
			return Source{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, rawURL)
		}
		return Source{Kind: KindTwitter, URL: rawURL, UserID: user, PostID: post}, nil
	}

	return Source{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, rawURL)
}

// IsPlaylist reports whether rawURL carries the playlist query marker.
func IsPlaylist(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get("list") != ""
}

// parseStatusPath extracts user and post ids from a /{user}/status/{id} path.
func parseStatusPath(path string) (user, post string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[2] == "status" && parts[1] != "" && parts[3] != "" {
		return parts[1], parts[3], true
	}
	return "", "", false
}
