package domain

import "strings"

type DeviceInfo struct {
	DeviceType string `json:"deviceType"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	IsMobile   bool   `json:"isMobile"`
}

// Classification is a fixed-order substring match over the lowercased user
// agent; ties break to the first matching rule, unmatched fields report
// "Unknown".
var (
	deviceRules = []struct{ needle, kind string }{
		{"ipad", "tablet"},
		{"tablet", "tablet"},
		{"mobile", "mobile"},
		{"iphone", "mobile"},
		{"android", "mobile"},
		{"windows", "desktop"},
		{"macintosh", "desktop"},
		{"linux", "desktop"},
	}
	browserRules = []struct{ needle, name string }{
		{"edg", "Edge"},
		{"opr", "Opera"},
		{"chrome", "Chrome"},
		{"safari", "Safari"},
		{"firefox", "Firefox"},
		{"msie", "Internet Explorer"},
		{"trident", "Internet Explorer"},
	}
	osRules = []struct{ needle, name string }{
		{"windows", "Windows"},
		{"android", "Android"},
		{"iphone", "iOS"},
		{"ipad", "iOS"},
		{"mac os", "macOS"},
		{"macintosh", "macOS"},
		{"linux", "Linux"},
	}
)

func ParseUserAgent(ua string) DeviceInfo {
	lower := strings.ToLower(ua)
	info := DeviceInfo{DeviceType: "Unknown", Browser: "Unknown", OS: "Unknown"}
	for _, r := range deviceRules {
		if strings.Contains(lower, r.needle) {
			info.DeviceType = r.kind
			break
		}
	}
	for _, r := range browserRules {
		if strings.Contains(lower, r.needle) {
			info.Browser = r.name
			break
		}
	}
	for _, r := range osRules {
		if strings.Contains(lower, r.needle) {
			info.OS = r.name
			break
		}
	}
	info.IsMobile = info.DeviceType == "mobile" || info.DeviceType == "tablet"
	return info
}
