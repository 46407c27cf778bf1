// Package quest holds the listing record discovered on the quest search page.
package quest

import "strings"

// DefaultOrigin is the origin listing hrefs are resolved against in notifications.
const DefaultOrigin = "https://app.layer3.xyz"

// DefaultSearchURL is the page that lists newly published quests.
const DefaultSearchURL = DefaultOrigin + "/search"

// DefaultPathMarker identifies an anchor as a link to a quest detail page.
const DefaultPathMarker = "/v2/quests/"

// Record is one listing found on the search page. Records are never mutated once stored.
type Record struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Href  string `json:"href"`
}

// IDFromHref returns the last "/"-separated segment of href, which may be empty
// when the href ends in a slash.
func IDFromHref(href string) string {
	idx := strings.LastIndex(href, "/")
	return href[idx+1:]
}

// Valid reports whether the record may be stored and notified.
func (r Record) Valid() bool {
	return r.ID != "" && r.Title != ""
}

// URL joins origin and the raw href. No normalization is applied, the href is
// expected to be a rooted path like "/v2/quests/q1".
func (r Record) URL(origin string) string {
	return origin + r.Href
}
