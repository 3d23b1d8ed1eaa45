package socialshare

import (
	"net/url"
	"sort"
)

// Site builds the share link for one sharing service.
type Site struct {
	Name     string
	generate func(videoURL string) string
}

// GenerateShareURL returns the service URL that shares videoURL.
func (s Site) GenerateShareURL(videoURL string) string {
	return s.generate(videoURL)
}

// NewTextSite builds a site whose link carries pre-filled text, as
// base?text=<text>&url=<video>.
func NewTextSite(name, base, text string) Site {
	return Site{Name: name, generate: func(videoURL string) string {
		return base + "?text=" + url.QueryEscape(text) + "&url=" + url.QueryEscape(videoURL)
	}}
}

// NewBaseURLSite builds a site whose link is base followed by the escaped
// video URL. base carries the query parameter name, e.g. "...?u=".
func NewBaseURLSite(name, base string) Site {
	return Site{Name: name, generate: func(videoURL string) string {
		return base + url.QueryEscape(videoURL)
	}}
}

// Registry maps a button's source name to its site.
type Registry map[string]Site

// DefaultTweetText pre-fills the tweet body.
const DefaultTweetText = "Here's a fun clip from a class I'm taking on edX."

// DefaultRegistry returns twitter, facebook and linkedin.
func DefaultRegistry(tweetText string) Registry {
	if tweetText == "" {
		tweetText = DefaultTweetText
	}
	return Registry{
		"twitter":  NewTextSite("Twitter", "https://twitter.com/intent/tweet", tweetText),
		"facebook": NewBaseURLSite("Facebook", "https://www.facebook.com/sharer/sharer.php?u="),
		"linkedin": NewBaseURLSite("LinkedIn", "https://www.linkedin.com/sharing/share-offsite/?url="),
	}
}

// Sources returns the registered source names, sorted.
func (r Registry) Sources() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func escape(s string) string { return url.QueryEscape(s) }
