package download

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mp4AnchorPattern matches anchor text advertising an MP4 download on the
// third-party helper pages.
var mp4AnchorPattern = regexp.MustCompile(`(?i)(download|tải|mp4|hd)`)

// extractMediaHref scans a helper page for the first anchor that looks like a
// direct MP4 download link. Protocol-relative URLs are normalized to https.
func extractMediaHref(doc *goquery.Document) (string, bool) {
	var found string

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return true
		}

		if !looksLikeMediaURL(href) && !mp4AnchorPattern.MatchString(s.Text()) {
			return true
		}

		found = href
		return false
	})

	if found == "" {
		return "", false
	}

	if strings.HasPrefix(found, "//") {
		found = "https:" + found
	}

	return found, true
}

func looksLikeMediaURL(href string) bool {
	lower := strings.ToLower(href)
	return strings.Contains(lower, ".mp4") ||
		strings.Contains(lower, "googlevideo.com") ||
		strings.Contains(lower, "tikcdn") ||
		strings.Contains(lower, "/dl.")
}
