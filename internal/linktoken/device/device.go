// Package device turns raw User-Agent strings into short display names for
// session logging, like "Chrome on Mac OS X" or "Safari on iPhone".
package device

import (
	"fmt"

	"github.com/mssola/useragent"
)

// ParseUserAgent formats a user agent as "<browser> on <platform>". An empty
// string maps to "Unknown Device".
func ParseUserAgent(uaString string) string {
	if uaString == "" {
		return "Unknown Device"
	}

	ua := useragent.New(uaString)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	target := ua.OS()
	// Handheld platforms read better than their full OS string.
	if p := ua.Platform(); p == "iPhone" || p == "iPad" {
		target = p
	}
	if target == "" {
		target = "Unknown OS"
	}

	return fmt.Sprintf("%s on %s", browser, target)
}
