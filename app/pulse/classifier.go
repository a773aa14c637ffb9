package pulse

import (
	"net"
	"strings"
)

// Browser engines embed each other's product tokens, so order matters:
// Edge carries Chrome/ and Safari/, Chrome carries Safari/.
func uaFamily(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	switch {
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	case strings.Contains(ua, "curl/"):
		return "curl"
	}
	first := strings.Fields(ua)[0]
	family, _, _ := strings.Cut(first, "/")
	return family
}

func uaDevice(ua string) string {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return ""
	}
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	case strings.Contains(ua, "bot") || strings.Contains(ua, "spider") || strings.Contains(ua, "crawler"):
		return "bot"
	}
	return "desktop"
}

// refHost extracts the bare hostname from a Referer value without
// requiring it to be a well-formed URL.
func refHost(referer string) string {
	s := strings.TrimSpace(referer)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
	s, _, _ = strings.Cut(s, "/")
	if idx := strings.LastIndex(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	s, _, _ = strings.Cut(s, ":")
	return strings.TrimSpace(s)
}

var searchHosts = []string{
	"google.", "bing.com", "duckduckgo.com", "baidu.com", "yandex.",
	"sogou.com", "so.com", "ecosia.org", "startpage.com",
}

var socialHosts = []string{
	"twitter.com", "x.com", "t.co", "facebook.com", "instagram.com",
	"reddit.com", "news.ycombinator.com", "weibo.com", "zhihu.com",
	"t.me", "telegram.org", "linkedin.com", "mastodon.social", "douban.com",
}

// sourceType classifies where the visit came from. No referer means a
// direct visit; known engines and networks get their own buckets,
// everything else is an external link.
func sourceType(host string) string {
	if host == "" {
		return "direct"
	}
	lower := strings.ToLower(host)
	for _, h := range searchHosts {
		if strings.Contains(lower, h) {
			return "search"
		}
	}
	for _, h := range socialHosts {
		if lower == h || strings.HasSuffix(lower, "."+h) {
			return "social"
		}
	}
	return "external"
}

// country resolves the visitor country. Cloudflare's CF-IPCountry wins
// when present ("XX" means unknown to Cloudflare too). Without it the
// first X-Forwarded-For hop only distinguishes local traffic; there is
// no GeoIP database behind this.
func country(cfCountry, forwardedFor string) string {
	cf := strings.TrimSpace(cfCountry)
	if cf != "" && !strings.EqualFold(cf, "xx") {
		return cf
	}

	first := strings.TrimSpace(forwardedFor)
	if idx := strings.Index(first, ","); idx >= 0 {
		first = strings.TrimSpace(first[:idx])
	}
	if ip := net.ParseIP(first); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() {
			return "local"
		}
	}
	return "unknown"
}
