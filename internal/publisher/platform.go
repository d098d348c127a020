package publisher

// Platform is the closed set of platforms a post can target.
type Platform int

const (
	Unknown Platform = iota
	Facebook
	Instagram
	LinkedIn
	Twitter
	YouTube
	Reddit
	Quora
)

var platformNames = [...]string{
	Unknown:   "unknown",
	Facebook:  "facebook",
	Instagram: "instagram",
	LinkedIn:  "linkedin",
	Twitter:   "twitter",
	YouTube:   "youtube",
	Reddit:    "reddit",
	Quora:     "quora",
}

func (p Platform) String() string {
	if p < 0 || int(p) >= len(platformNames) {
		return platformNames[Unknown]
	}
	return platformNames[p]
}

// Known reports whether p is a supported platform.
func (p Platform) Known() bool { return p > Unknown && int(p) < len(platformNames) }

// ParsePlatform maps an identifier to a Platform by exact match.
// "Facebook" or " facebook" are Unknown.
func ParsePlatform(s string) Platform {
	for i := Facebook; int(i) < len(platformNames); i++ {
		if platformNames[i] == s {
			return i
		}
	}
	return Unknown
}

// Platforms returns every known platform in declaration order.
func Platforms() []Platform {
	out := make([]Platform, 0, len(platformNames)-1)
	for i := Facebook; int(i) < len(platformNames); i++ {
		out = append(out, i)
	}
	return out
}
