package sources

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hvac-targets/internal/extract"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/google"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
)

// Adapter names reported in Enrichment.Failed.
const (
	AdapterLicenses = "licenses"
	AdapterPermits  = "permits"
	AdapterReviews  = "reviews"
	AdapterWebsite  = "website"
	AdapterPlaces   = "places"
)

// Enrichment is what the adapters found for one business.
type Enrichment struct {
	Licenses    []model.License
	Permits     []model.Permit
	Reviews     []model.Review
	SocialLinks []model.SocialLink
	// Phone and Website come from a matched Google listing.
	Phone   string
	Website string
	// Failed lists adapters that returned an error.
	Failed []string
}

// Apply merges e into b. Non-empty license, permit and review results
// replace what b holds. Phone, website and social links only fill what b is
// missing. It reports whether b changed.
func (e Enrichment) Apply(b *model.Business) bool {
	changed := false
	if len(e.Licenses) > 0 {
		b.Licenses = e.Licenses
		changed = true
	}
	if len(e.Permits) > 0 {
		b.Permits = e.Permits
		changed = true
	}
	if len(e.Reviews) > 0 {
		b.Reviews = e.Reviews
		changed = true
	}
	if e.Phone != "" && b.Phone == "" {
		b.Phone = e.Phone
		changed = true
	}
	if e.Website != "" && !b.HasWebsite() {
		if site, err := extract.NormalizeWebsite(e.Website); err == nil {
			b.Website = &site
			changed = true
		}
	}
	for _, l := range e.SocialLinks {
		if b.SocialURL(l.Platform) == "" {
			b.SocialLinks = append(b.SocialLinks, l)
			changed = true
		}
	}
	return changed
}

// Enricher runs every adapter for a business.
type Enricher struct {
	licenses *Licenses
	permits  *Permits
	reviews  *Reviews
	website  *Website
	places   *Places
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithPlaces adds the Google Places lookup. Its Google rating replaces the
// one the review search reports.
func WithPlaces(client google.Client) EnricherOption {
	return func(e *Enricher) { e.places = NewPlaces(client) }
}

// NewEnricher wires the Perplexity-backed lookups and the homepage probe.
func NewEnricher(client perplexity.Client, web WebsiteConfig, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		licenses: NewLicenses(client),
		permits:  NewPermits(client),
		reviews:  NewReviews(client),
		website:  NewWebsite(web),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich runs the adapters concurrently. An adapter failure is logged and
// recorded in Failed; the other results are still returned. The website
// probe only runs when b has a website.
func (e *Enricher) Enrich(ctx context.Context, b *model.Business) Enrichment {
	var (
		out Enrichment
		mu  sync.Mutex
		g   errgroup.Group
	)
	log := zap.L().With(zap.Int64("business_id", b.ID), zap.String("business", b.Name))

	run := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				log.Warn("sources: adapter failed", zap.String("adapter", name), zap.Error(err))
				mu.Lock()
				out.Failed = append(out.Failed, name)
				mu.Unlock()
			}
			return nil
		})
	}

	run(AdapterLicenses, func() error {
		v, err := e.licenses.Lookup(ctx, b)
		mu.Lock()
		out.Licenses = v
		mu.Unlock()
		return err
	})
	run(AdapterPermits, func() error {
		v, err := e.permits.Lookup(ctx, b)
		mu.Lock()
		out.Permits = v
		mu.Unlock()
		return err
	})
	run(AdapterReviews, func() error {
		v, err := e.reviews.Lookup(ctx, b)
		mu.Lock()
		out.Reviews = v
		mu.Unlock()
		return err
	})
	if b.HasWebsite() {
		site := *b.Website
		run(AdapterWebsite, func() error {
			v, err := e.website.SocialLinks(ctx, site)
			mu.Lock()
			out.SocialLinks = v
			mu.Unlock()
			return err
		})
	}

	var place *PlaceMatch
	if e.places != nil {
		run(AdapterPlaces, func() error {
			v, err := e.places.Lookup(ctx, b)
			place = v
			return err
		})
	}

	_ = g.Wait()
	if place != nil {
		out.Reviews = withReview(out.Reviews, place.Review)
		out.Phone = place.Phone
		out.Website = place.Website
	}
	log.Debug("sources: enrichment finished",
		zap.Int("licenses", len(out.Licenses)),
		zap.Int("permits", len(out.Permits)),
		zap.Int("reviews", len(out.Reviews)),
		zap.Int("social_links", len(out.SocialLinks)),
		zap.Strings("failed", out.Failed),
	)
	return out
}
