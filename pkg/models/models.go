package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentType identifies one kind of profile content.
type ContentType string

const (
	ContentTypePost ContentType = "post"
	ContentTypeReel ContentType = "reel"
)

// Selection controls which content types a run walks.
type Selection string

const (
	SelectPosts Selection = "posts"
	SelectReels Selection = "reels"
	SelectBoth  Selection = "both"
)

// ParseSelection validates a selection string from config or flags.
func ParseSelection(s string) (Selection, error) {
	switch Selection(strings.ToLower(s)) {
	case SelectPosts:
		return SelectPosts, nil
	case SelectReels:
		return SelectReels, nil
	case SelectBoth:
		return SelectBoth, nil
	default:
		return "", fmt.Errorf("invalid content type selection: %q (want posts, reels or both)", s)
	}
}

// ContentTypes returns the content types included in the selection, in
// walk order (posts before reels, matching profile layout).
func (s Selection) ContentTypes() []ContentType {
	switch s {
	case SelectPosts:
		return []ContentType{ContentTypePost}
	case SelectReels:
		return []ContentType{ContentTypeReel}
	default:
		return []ContentType{ContentTypePost, ContentTypeReel}
	}
}

// Profile is one account to walk. Profiles are built from run
// configuration and are immutable for the duration of the run.
type Profile struct {
	Handle     string
	Account    string // credential store reference, not the credentials themselves
	PostsQuota int
	ReelsQuota int
	Selection  Selection
}

// QuotaFor returns the item quota for a content type.
func (p Profile) QuotaFor(ct ContentType) int {
	if ct == ContentTypeReel {
		return p.ReelsQuota
	}
	return p.PostsQuota
}

// ProfileURL returns the canonical profile page URL for a handle.
func ProfileURL(handle string) string {
	return fmt.Sprintf("https://www.instagram.com/%s/", handle)
}

// ContentItem is one discovered post or reel. Order is assigned at
// discovery time and is strictly increasing within a walk.
type ContentItem struct {
	URL       string      `json:"content_url"`
	ID        string      `json:"content_id"`
	ScrapedAt time.Time   `json:"scraped_at"`
	Type      ContentType `json:"content_type"`
	Order     int         `json:"order"`
}

// CleanItemURL normalises a rendered item URL: overlay segments and
// query parameters are stripped so the same item always yields the
// same canonical URL.
func CleanItemURL(raw string) string {
	u := raw
	for _, seg := range []string{"/liked_by", "/comments", "/tagged"} {
		if i := strings.Index(u, seg); i >= 0 {
			u = u[:i]
		}
	}
	if i := strings.Index(u, "?"); i >= 0 {
		u = u[:i]
	}
	if u != "" && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// ExtractContentID pulls the shortcode out of a post or reel URL.
// Returns "unknown" when the URL has neither marker.
func ExtractContentID(url string) string {
	for _, marker := range []string{"/p/", "/reel/"} {
		if _, rest, ok := strings.Cut(url, marker); ok {
			if id, _, _ := strings.Cut(rest, "/"); id != "" {
				return id
			}
		}
	}
	return "unknown"
}

// ContentTypeOf classifies a URL as post or reel. Anything that is
// not a reel URL is treated as a post.
func ContentTypeOf(url string) ContentType {
	if strings.Contains(url, "/reel/") {
		return ContentTypeReel
	}
	return ContentTypePost
}

// Report is the aggregate run output written to stdout as JSON.
type Report struct {
	RunID    string          `json:"run_id"`
	Profiles []ProfileResult `json:"profiles"`
	Summary  RunSummary      `json:"summary"`
}

// ProfileResult pairs one profile's collected items with its summary.
type ProfileResult struct {
	Profile ProfileData    `json:"profile"`
	Summary ProfileSummary `json:"summary"`
}

// ProfileData holds the items collected for one profile.
type ProfileData struct {
	Username   string        `json:"username"`
	ProfileURL string        `json:"profile_url"`
	ScrapedAt  time.Time     `json:"scraped_at"`
	Posts      []ContentItem `json:"posts"`
	Reels      []ContentItem `json:"reels"`
}

// ProfileSummary describes how one profile's walk went.
type ProfileSummary struct {
	Username            string  `json:"username"`
	PostsCount          int     `json:"posts_count"`
	ReelsCount          int     `json:"reels_count"`
	ScrapingTimeSeconds float64 `json:"scraping_time_seconds"`
	Success             bool    `json:"success"`
	Outcome             string  `json:"outcome,omitempty"`
	FailureReason       string  `json:"failure_reason,omitempty"`
}

// RunSummary is the cross-profile roll-up.
type RunSummary struct {
	TotalProfiles      int       `json:"total_profiles"`
	SuccessfulProfiles int       `json:"successful_profiles"`
	TotalPosts         int       `json:"total_posts"`
	TotalReels         int       `json:"total_reels"`
	ScrapedAt          time.Time `json:"scraped_at"`
	SuccessRate        float64   `json:"success_rate"`
}
