package quark

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrNotShareLink = errors.New("not a drive share link")

// shareLinkRE matches drive share links inside free text, including an
// optional ?pwd= passcode suffix.
var shareLinkRE = regexp.MustCompile(`https?://pan\.quark\.cn/s/[0-9A-Za-z]+(?:\?pwd=[0-9A-Za-z]+)?`)

// ExtractLinks returns all share links found in text, in order.
func ExtractLinks(text string) []string {
	return shareLinkRE.FindAllString(text, -1)
}

// ParseShareLink splits a share link into its pwd id and optional passcode.
func ParseShareLink(link string) (pwdID, passcode string, err error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", ErrNotShareLink
	}
	if u.Host != "pan.quark.cn" {
		return "", "", ErrNotShareLink
	}

	rest, ok := strings.CutPrefix(u.Path, "/s/")
	if !ok || rest == "" {
		return "", "", ErrNotShareLink
	}
	pwdID = strings.Trim(rest, "/")
	if i := strings.IndexByte(pwdID, '/'); i >= 0 {
		pwdID = pwdID[:i]
	}

	return pwdID, u.Query().Get("pwd"), nil
}
