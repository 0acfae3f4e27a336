// usecase/links.go
package usecase

import (
	"regexp"
	"strings"
)

type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
)

var linkPatterns = []struct {
	platform Platform
	pattern  *regexp.Regexp
}{
	{PlatformYouTube, regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.)?youtube\.com/shorts/[a-zA-Z0-9_-]{11}/?`)},
	{PlatformTikTok, regexp.MustCompile(`(?i)(?:https?://)?(?:vm|vt)\.tiktok\.com/[a-zA-Z0-9_-]+/?`)},
	{PlatformTikTok, regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?tiktok\.com/@[\w.-]+/video/\d+/?`)},
	{PlatformInstagram, regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?instagram\.com/reels?/[a-zA-Z0-9_-]+/?`)},
}

// ParseVideoLink finds the first supported short-form video link in text and
// returns it with an explicit https scheme.
func ParseVideoLink(text string) (Platform, string, bool) {
	for _, lp := range linkPatterns {
		match := lp.pattern.FindString(text)
		if match == "" {
			continue
		}
		lower := strings.ToLower(match)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			match = "https://" + match
		}
		return lp.platform, match, true
	}
	return "", "", false
}
