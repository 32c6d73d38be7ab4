package extract

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/sells-group/hvac-targets/internal/model"
)

// socialDomains maps registrable domains to the platform they host.
var socialDomains = map[string]model.SocialPlatform{
	"facebook.com":  model.SocialFacebook,
	"fb.com":        model.SocialFacebook,
	"linkedin.com":  model.SocialLinkedIn,
	"instagram.com": model.SocialInstagram,
}

// directoryDomains are listing sites that are not a company's own website.
var directoryDomains = map[string]bool{
	"yelp.com":        true,
	"bbb.org":         true,
	"angi.com":        true,
	"angieslist.com":  true,
	"google.com":      true,
	"nextdoor.com":    true,
	"homeadvisor.com": true,
	"yellowpages.com": true,
}

func parseHost(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("extract: empty website")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "extract: parse website %q", raw)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if !strings.Contains(host, ".") {
		return "", eris.Errorf("extract: website %q has no domain", raw)
	}
	return host, nil
}

// Domain returns the registrable domain of a website URL or bare host, e.g.
// "https://www.shop.acmeair.co.uk/x" -> "acmeair.co.uk".
func Domain(raw string) (string, error) {
	host, err := parseHost(raw)
	if err != nil {
		return "", err
	}
	d, err := publicsuffix.Domain(host)
	if err != nil {
		return "", eris.Wrapf(err, "extract: registrable domain of %q", host)
	}
	return d, nil
}

// NormalizeWebsite canonicalizes a company website to "https://<host>",
// dropping a leading "www.", any path and the query. The host must have a
// registrable domain.
func NormalizeWebsite(raw string) (string, error) {
	host, err := parseHost(raw)
	if err != nil {
		return "", err
	}
	if _, err := publicsuffix.Domain(host); err != nil {
		return "", eris.Wrapf(err, "extract: registrable domain of %q", host)
	}
	return "https://" + strings.TrimPrefix(host, "www."), nil
}

// SocialPlatformFor reports which tracked social platform hosts raw.
func SocialPlatformFor(raw string) (model.SocialPlatform, bool) {
	d, err := Domain(raw)
	if err != nil {
		return "", false
	}
	p, ok := socialDomains[d]
	return p, ok
}

// IsDirectoryListing reports whether raw points at a review or listing site
// rather than the company's own site.
func IsDirectoryListing(raw string) bool {
	d, err := Domain(raw)
	if err != nil {
		return false
	}
	return directoryDomains[d]
}
