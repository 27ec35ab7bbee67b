// Package device derives a stable identity for a physical device from
// request-level signals. Derivation is pure: nothing here touches storage.
package device

import (
	"strings"
)

const Unknown = "Unknown"

// Device classes.
const (
	ClassMobile  = "mobile"
	ClassTablet  = "tablet"
	ClassDesktop = "desktop"
)

// Signals is everything a request can tell us about the client. IP is carried
// for session metadata but deliberately never participates in fingerprinting.
type Signals struct {
	UserAgent   string
	Platform    string
	Language    string
	Timezone    string
	Screen      string // "WxHxDepth" as declared by the client
	IP          string
	DeviceName  string // optional, user-chosen
	Fingerprint string // optional, client-computed hash
}

// Info is the descriptive metadata stored on a session row.
type Info struct {
	Name     string
	Class    string
	Platform string
	Browser  string
	OS       string
	IP       string
}

// Resolve parses the signals into descriptive metadata. Parsing is
// best-effort substring matching; anything unrecognized comes back as
// "Unknown" rather than an error.
func Resolve(signals Signals) Info {
	ua := strings.ToLower(signals.UserAgent)

	info := Info{
		Class:    classify(ua),
		Platform: signals.Platform,
		Browser:  browser(ua),
		OS:       operatingSystem(ua),
		IP:       signals.IP,
	}
	if info.Platform == "" {
		info.Platform = Unknown
	}

	info.Name = signals.DeviceName
	if info.Name == "" {
		info.Name = displayName(info)
	}

	return info
}

func classify(ua string) string {
	switch {
	case ua == "":
		return Unknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return ClassTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		// Android tablets omit the "Mobile" token.
		return ClassTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return ClassMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return ClassDesktop
	default:
		return Unknown
	}
}

func browser(ua string) string {
	switch {
	case ua == "":
		return Unknown
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		return "Chrome"
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	default:
		return Unknown
	}
}

func operatingSystem(ua string) string {
	switch {
	case ua == "":
		return Unknown
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return "Linux"
	default:
		return Unknown
	}
}

func displayName(info Info) string {
	if info.Browser == Unknown && info.OS == Unknown {
		return Unknown + " device"
	}
	return info.Browser + " on " + info.OS
}
