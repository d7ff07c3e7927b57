// Package deeplink classifies incoming URLs into structured intents. Parse is
// pure and total: any input maps to a Link or nil, never a panic or an error.
package deeplink

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind identifies what a link asks the app to do.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindReferral Kind = "referral"
	KindPost     Kind = "post"
	KindReel     Kind = "reel"
)

// Intent narrows an auth link to its flow. Empty when the link does not say.
type Intent string

const (
	IntentRecovery Intent = "recovery"
	IntentVerify   Intent = "verify"
)

// Link is the parsed form of a deep link. Raw preserves the original input
// for diagnostics and for the session exchange call.
type Link struct {
	Kind         Kind
	Intent       Intent // auth links only
	ID           string // post/reel identifier
	ReferralCode string
	Raw          string
}

var (
	postPattern = regexp.MustCompile(`^/post/([A-Za-z0-9_-]+)/?$`)
	reelPattern = regexp.MustCompile(`^/reel/([A-Za-z0-9_-]+)/?$`)
)

// referralParams are checked in order so the first populated one wins.
var referralParams = []string{"code", "ref", "referral", "referralCode"}

// Parse classifies raw into a Link. Precedence: auth, referral, post, reel.
// Returns nil for empty, unknown, or unparseable input.
//
// Auth detection runs on the raw string so that scheme-based callbacks
// (app://auth-callback?...) and fragment-delivered tokens are caught even
// when the URL does not parse cleanly. A side effect preserved from the
// original behavior: a referral link carrying its code in a `code=` or
// `referralCode=` parameter classifies as auth; only `ref=` and `referral=`
// reach the referral rule.
func Parse(raw string) *Link {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	if isAuth(trimmed) {
		return &Link{Kind: KindAuth, Intent: intentOf(trimmed), Raw: raw}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil
	}

	path := effectivePath(u)

	query := u.Query()
	if code := firstReferralCode(query); code != "" && isReferralPath(path) {
		return &Link{Kind: KindReferral, ReferralCode: code, Raw: raw}
	}

	if m := postPattern.FindStringSubmatch(path); m != nil {
		return &Link{Kind: KindPost, ID: m[1], Raw: raw}
	}
	if m := reelPattern.FindStringSubmatch(path); m != nil {
		return &Link{Kind: KindReel, ID: m[1], Raw: raw}
	}

	return nil
}

// effectivePath folds the host segment of custom-scheme links back into the
// path: committed://reel/99 parses with Host "reel" and Path "/99".
func effectivePath(u *url.URL) string {
	if u.Scheme == "http" || u.Scheme == "https" || u.Host == "" {
		return u.Path
	}
	return "/" + u.Host + u.Path
}

func isAuth(raw string) bool {
	return strings.Contains(raw, "code=") ||
		strings.Contains(raw, "access_token=") ||
		strings.Contains(raw, "type=recovery") ||
		strings.Contains(raw, "auth-callback")
}

func intentOf(raw string) Intent {
	switch {
	case strings.Contains(raw, "type=recovery"):
		return IntentRecovery
	case strings.Contains(raw, "type=verify"):
		return IntentVerify
	}
	return ""
}

func firstReferralCode(query url.Values) string {
	for _, key := range referralParams {
		if v := query.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// isReferralPath accepts paths that mention referrals plus the landing and
// signup surfaces where dropped referral codes must still be recognized.
func isReferralPath(path string) bool {
	if strings.Contains(strings.ToLower(path), "referral") {
		return true
	}
	switch strings.TrimSuffix(path, "/") {
	case "", "/auth", "/signup":
		return true
	}
	return false
}
