package tracking

import (
	"strings"

	"utmtracker/api/models"
)

// Platform labels reported in platform_detected.
const (
	PlatformGoogleAds    = "Google Ads"
	PlatformMeta         = "Meta/Facebook"
	PlatformInstagram    = "Instagram"
	PlatformTikTok       = "TikTok"
	PlatformMicrosoftAds = "Microsoft Ads"
	PlatformLinkedIn     = "LinkedIn"
	PlatformEmail        = "Email"
	PlatformUnknown      = "Unknown"
)

// sourceRules is checked in order against a lowercased utm_source.
var sourceRules = []struct {
	needles  []string
	platform string
}{
	{[]string{"google", "gclid"}, PlatformGoogleAds},
	{[]string{"facebook", "meta"}, PlatformMeta},
	{[]string{"instagram"}, PlatformInstagram},
	{[]string{"tiktok"}, PlatformTikTok},
	{[]string{"bing", "microsoft"}, PlatformMicrosoftAds},
	{[]string{"linkedin"}, PlatformLinkedIn},
	{[]string{"email", "mailchimp"}, PlatformEmail},
}

// DetectPlatform classifies the originating ad platform of a hit. Click
// identifiers take priority over any utm_source heuristic.
func DetectPlatform(params models.Params) string {
	switch {
	case present(params, "gclid"):
		return PlatformGoogleAds
	case present(params, "fbclid"):
		if present(params, "igshid") {
			return PlatformInstagram
		}
		return PlatformMeta
	case present(params, "ttclid"):
		return PlatformTikTok
	case present(params, "msclkid"):
		return PlatformMicrosoftAds
	}

	source, ok := paramString(params, "utm_source")
	if !ok {
		return PlatformUnknown
	}
	source = strings.ToLower(source)
	for _, rule := range sourceRules {
		for _, needle := range rule.needles {
			if strings.Contains(source, needle) {
				return rule.platform
			}
		}
	}
	return PlatformUnknown
}
