// Package deeplink parses private-match invite links.
package deeplink

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	Scheme = "sudokuduo"
	Host   = "sudokuduo.com"
)

var (
	codeRe     = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)
	joinPathRe = regexp.MustCompile(`(?i)^/join/([A-Z0-9]{6})/?$`)
)

// ParseJoin extracts the invite code from sudokuduo://join/<code> or
// https://sudokuduo.com/join/<code>. Codes come back upper-cased.
func ParseJoin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case Scheme:
		if !strings.EqualFold(u.Host, "join") {
			return "", false
		}
		code := strings.Trim(u.Path, "/")
		if !codeRe.MatchString(code) {
			return "", false
		}
		return strings.ToUpper(code), true
	case "https", "http":
		if !strings.EqualFold(u.Hostname(), Host) {
			return "", false
		}
		m := joinPathRe.FindStringSubmatch(u.Path)
		if m == nil {
			return "", false
		}
		return strings.ToUpper(m[1]), true
	}
	return "", false
}

// ValidCode reports whether s looks like an invite code.
func ValidCode(s string) bool { return codeRe.MatchString(strings.TrimSpace(s)) }

// JoinURL is the app link shared with the invited player.
func JoinURL(code string) string {
	return Scheme + "://join/" + strings.ToUpper(strings.TrimSpace(code))
}

// WebJoinURL is the https fallback of JoinURL.
func WebJoinURL(code string) string {
	return "https://" + Host + "/join/" + strings.ToUpper(strings.TrimSpace(code))
}
