// Package platform holds the fixed set of tracked social-media platforms and
// the hostname table used to classify browser URLs.
package platform

import (
	"fmt"
	"strings"
)

// Platform identifies a tracked social-media site.
type Platform string

const (
	Facebook  Platform = "facebook"
	Twitter   Platform = "twitter"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	LinkedIn  Platform = "linkedin"
	YouTube   Platform = "youtube"
)

var all = []Platform{Facebook, Twitter, Instagram, TikTok, LinkedIn, YouTube}

// All returns every supported platform in a stable order.
func All() []Platform {
	out := make([]Platform, len(all))
	copy(out, all)
	return out
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	for _, known := range all {
		if p == known {
			return true
		}
	}
	return false
}

// String returns the platform identifier.
func (p Platform) String() string {
	return string(p)
}

// Title returns the display name used in notification text.
func (p Platform) Title() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Parse normalizes s and returns the matching platform.
func Parse(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return "", fmt.Errorf("platform is required")
	}
	if !p.Valid() {
		return "", fmt.Errorf("unsupported platform %q", s)
	}
	return p, nil
}

// Domains maps registrable domains to their platform.
var Domains = map[string]Platform{
	"facebook.com":  Facebook,
	"twitter.com":   Twitter,
	"x.com":         Twitter,
	"instagram.com": Instagram,
	"tiktok.com":    TikTok,
	"linkedin.com":  LinkedIn,
	"youtube.com":   YouTube,
}
