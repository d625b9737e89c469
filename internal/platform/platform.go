// Package platform classifies submitted URLs into the fixed set of supported
// source sites.
package platform

import (
	"net/url"
	"strings"

	"github.com/dloadly/backend/internal/models"
)

// Detection is the result of classifying a URL. Valid is false when the host
// was recognized but the path does not satisfy the platform's format (e.g. an
// Fshare link without a file code), letting callers message the user
// specifically instead of reporting an unsupported platform.
type Detection struct {
	Platform models.Platform
	Valid    bool
}

// host suffix -> platform, checked before any path format rules.
var hostPlatforms = []struct {
	suffix   string
	platform models.Platform
}{
	{"youtube.com", models.PlatformYouTube},
	{"youtu.be", models.PlatformYouTube},
	{"tiktok.com", models.PlatformTikTok},
	{"instagram.com", models.PlatformInstagram},
	{"instagr.am", models.PlatformInstagram},
	{"facebook.com", models.PlatformFacebook},
	{"fb.watch", models.PlatformFacebook},
	{"twitter.com", models.PlatformTwitter},
	{"x.com", models.PlatformTwitter},
	{"fshare.vn", models.PlatformFshare},
}

// Detect classifies the supplied URL. It never panics on malformed input;
// anything that cannot be parsed or matched is tagged unknown.
func Detect(raw string) Detection {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Detection{Platform: models.PlatformUnknown}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Detection{Platform: models.PlatformUnknown}
	}

	host := strings.ToLower(u.Hostname())
	tag := models.PlatformUnknown
	for _, hp := range hostPlatforms {
		if host == hp.suffix || strings.HasSuffix(host, "."+hp.suffix) {
			tag = hp.platform
			break
		}
	}
	if tag == models.PlatformUnknown {
		return Detection{Platform: models.PlatformUnknown}
	}

	return Detection{Platform: tag, Valid: matchesFormat(tag, host, u)}
}

func matchesFormat(tag models.Platform, host string, u *url.URL) bool {
	path := u.EscapedPath()

	switch tag {
	case models.PlatformYouTube:
		if strings.HasSuffix(host, "youtu.be") {
			return strings.Trim(path, "/") != ""
		}
		if u.Query().Get("v") != "" && strings.Contains(path, "/watch") {
			return true
		}
		return strings.Contains(path, "/shorts/") || strings.Contains(path, "/embed/")
	case models.PlatformTikTok:
		// Short-link hosts (vm/vt.tiktok.com) carry only an opaque code.
		return strings.Trim(path, "/") != ""
	case models.PlatformInstagram:
		return strings.Contains(path, "/p/") ||
			strings.Contains(path, "/reel") ||
			strings.Contains(path, "/tv/")
	case models.PlatformFacebook:
		if host == "fb.watch" || strings.HasSuffix(host, ".fb.watch") {
			return strings.Trim(path, "/") != ""
		}
		return strings.Contains(path, "/videos/") ||
			strings.Contains(path, "/watch") ||
			strings.Contains(path, "/reel")
	case models.PlatformTwitter:
		return strings.Contains(path, "/status/")
	case models.PlatformFshare:
		return fshareFileCode(path) != ""
	default:
		return false
	}
}

// fshareFileCode extracts the trailing file code from an Fshare /file/ path.
// Codes of five characters or fewer are treated as malformed.
func fshareFileCode(path string) string {
	const marker = "/file/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return ""
	}
	code := path[idx+len(marker):]
	if i := strings.IndexAny(code, "/?#"); i >= 0 {
		code = code[:i]
	}
	if len(code) <= 5 {
		return ""
	}
	return code
}
