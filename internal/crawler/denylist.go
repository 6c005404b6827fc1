package crawler

import "strings"

// deniedSubstrings lists schemes and known non-content hosts that are never
// worth crawling: mail/tel/javascript links, big social networks, URL
// shorteners, code forges, and archive mirrors. Matching is by substring
// against the full lowercased URL.
var deniedSubstrings = []string{
	"mailto:",
	"tel:",
	"javascript:",
	"data:",
	"ftp://",
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"t.co/",
	"tiktok.com",
	"reddit.com",
	"tumblr.com",
	"pinterest.com",
	"linkedin.com",
	"bsky.app",
	"discord.com",
	"discord.gg",
	"twitch.tv",
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"dailymotion.com",
	"soundcloud.com",
	"spotify.com",
	"flickr.com",
	"imgur.com",
	"deviantart.com",
	"artstation.com",
	"github.com",
	"gitlab.com",
	"codeberg.org",
	"raw.githubusercontent.com",
	"bit.ly",
	"tinyurl.com",
	"goo.gl",
	"ow.ly",
	"t.me",
	"web.archive.org",
	"archive.org",
	"catbox.moe",
	"ze.wtf",
	"google.com",
	"cdn-cgi",
}

// Denied reports whether a URL matches the non-content denylist.
func Denied(rawURL string) bool {
	ls := strings.ToLower(strings.TrimSpace(rawURL))
	if ls == "" {
		return true
	}
	for _, s := range deniedSubstrings {
		if strings.Contains(ls, s) {
			return true
		}
	}
	return false
}
