package browser

import "strings"

var passthroughSchemes = []string{"http://", "https://", "about:", "data:", "file://"}

// NormalizeURL adds https:// to bare hosts such as "example.com".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	for _, scheme := range passthroughSchemes {
		if strings.HasPrefix(lower, scheme) {
			return raw
		}
	}
	return "https://" + raw
}
