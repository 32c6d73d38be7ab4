package sources

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/extract"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/resilience"
)

// maxPageBytes bounds how much of a homepage is parsed.
const maxPageBytes = 2 << 20

// WebsiteConfig configures the homepage probe.
type WebsiteConfig struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

// Website fetches a business homepage and collects the social profiles it
// links to.
type Website struct {
	client    *retryablehttp.Client
	userAgent string
}

// NewWebsite creates a homepage probe.
func NewWebsite(cfg WebsiteConfig) *Website {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "hvac-targets/1.0"
	}

	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout

	return &Website{client: rc, userAgent: cfg.UserAgent}
}

// SocialLinks returns the first facebook, linkedin and instagram profile
// linked from the page at site, in that order.
func (w *Website) SocialLinks(ctx context.Context, site string) ([]model.SocialLink, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, site, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "sources: build request for %s", site)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "sources: fetch %s", site)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.HTTPStatusError("website", resp.StatusCode, ""); err != nil {
		return nil, eris.Wrapf(err, "sources: fetch %s", site)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "sources: parse %s", site)
	}
	return socialLinksIn(doc), nil
}

func socialLinksIn(doc *goquery.Document) []model.SocialLink {
	found := make(map[model.SocialPlatform]string)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, "http") || isShareLink(href) {
			return
		}
		p, ok := extract.SocialPlatformFor(href)
		if !ok || found[p] != "" {
			return
		}
		found[p] = href
	})

	var links []model.SocialLink
	for _, p := range []model.SocialPlatform{model.SocialFacebook, model.SocialLinkedIn, model.SocialInstagram} {
		if u := found[p]; u != "" {
			links = append(links, model.SocialLink{Platform: p, URL: u})
		}
	}
	return links
}

// isShareLink reports share-button URLs, which point at the platform rather
// than a profile.
func isShareLink(href string) bool {
	h := strings.ToLower(href)
	return strings.Contains(h, "/sharer") || strings.Contains(h, "/share?") ||
		strings.Contains(h, "sharearticle") || strings.Contains(h, "/intent/")
}
