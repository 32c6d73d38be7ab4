package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/google"
	googlemocks "github.com/sells-group/hvac-targets/pkg/google/mocks"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
	"github.com/sells-group/hvac-targets/pkg/perplexity/mocks"
)

func promptContains(s string) any {
	return mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return len(req.Messages) == 2 && strings.Contains(req.Messages[1].Content, s)
	})
}

func TestParseLicenses(t *testing.T) {
	text := `TACLA00012345C | Robert Smith | Active | expires 2027-04-30
tacla00012345c | duplicate | Active
TACLB98765E | Jane Smith | Expired | expiration: 03/31/2024
No license here`

	got := ParseLicenses(text)
	require.Len(t, got, 2)

	assert.Equal(t, "TACLA00012345C", got[0].Number)
	assert.Equal(t, "Robert Smith", got[0].Holder)
	assert.Equal(t, "active", got[0].Status)
	assert.Equal(t, "Class A", got[0].Type)
	require.NotNil(t, got[0].ExpiresAt)
	assert.Equal(t, time.Date(2027, 4, 30, 0, 0, 0, 0, time.UTC), *got[0].ExpiresAt)

	assert.Equal(t, "TACLB98765E", got[1].Number)
	assert.Equal(t, "expired", got[1].Status)
	assert.Equal(t, "Class B", got[1].Type)
	require.NotNil(t, got[1].ExpiresAt)
	assert.Equal(t, 2024, got[1].ExpiresAt.Year())

	assert.Empty(t, ParseLicenses("NONE"))
}

func TestParsePermits(t *testing.T) {
	text := `permit BP-2025-0142 issued 2025-03-14 type commercial valuation $12,500
Permit #M25-77, issued 11/02/2024, type: residential
permit X-1 issued sometime type residential
permit BP-2025-0142 issued 2025-03-14 type commercial`

	got := ParsePermits(text)
	require.Len(t, got, 2)
	assert.Equal(t, model.Permit{
		Number:    "BP-2025-0142",
		IssuedAt:  time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Type:      model.PermitCommercial,
		Valuation: 12500,
	}, got[0])
	assert.Equal(t, "M25-77", got[1].Number)
	assert.Equal(t, model.PermitResidential, got[1].Type)
	assert.Equal(t, time.November, got[1].IssuedAt.Month())
}

func TestLookups(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()
	b := &model.Business{ID: 7, Name: "Acme Air", City: "Temple", County: "Bell", OwnerName: "Bob"}

	mc.On("ChatCompletion", mock.Anything, promptContains("TDLR")).
		Return(mocks.Reply("TACLA00012345C | Bob | Active | expires 2027-01-01"), nil).Once()
	lics, err := NewLicenses(mc).Lookup(ctx, b)
	require.NoError(t, err)
	require.Len(t, lics, 1)

	mc.On("ChatCompletion", mock.Anything, promptContains("issued between 2025-01-01 and 2026-03-01")).
		Return(mocks.Reply("permit P-1 issued 2026-02-01 type residential"), nil).Once()
	p := NewPermits(mc)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	permits, err := p.Lookup(ctx, b)
	require.NoError(t, err)
	require.Len(t, permits, 1)
	assert.Equal(t, "Temple", permits[0].City)

	mc.On("ChatCompletion", mock.Anything, promptContains("Google, Yelp, BBB")).
		Return(mocks.Reply("Google: 4.6 (213 reviews)\nYelp: 4.0 (18 reviews)"), nil).Once()
	reviews, err := NewReviews(mc).Lookup(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []model.Review{
		{Source: model.ReviewGoogle, Rating: 4.6, ReviewCount: 213},
		{Source: model.ReviewYelp, Rating: 4.0, ReviewCount: 18},
	}, reviews)
}

func TestLookup_Error(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("perplexity: unexpected status 401: bad key"))

	_, err := NewReviews(mc).Lookup(context.Background(), &model.Business{Name: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources: review lookup")
}

const homepage = `<html><body>
<a href="https://www.facebook.com/sharer/sharer.php?u=x">Share</a>
<a href="https://www.facebook.com/acmeair">Facebook</a>
<a href="https://facebook.com/acmeair-old">Old page</a>
<a href="/contact">Contact</a>
<a href=" https://www.instagram.com/acmeair/ ">Instagram</a>
<a href="https://twitter.com/acmeair">Twitter</a>
</body></html>`

func TestWebsite_SocialLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(homepage))
	}))
	defer srv.Close()

	links, err := NewWebsite(WebsiteConfig{UserAgent: "test-agent"}).SocialLinks(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []model.SocialLink{
		{Platform: model.SocialFacebook, URL: "https://www.facebook.com/acmeair"},
		{Platform: model.SocialInstagram, URL: "https://www.instagram.com/acmeair/"},
	}, links)
}

func TestWebsite_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewWebsite(WebsiteConfig{}).SocialLinks(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestEnricher_Enrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(homepage))
	}))
	defer srv.Close()

	mc := mocks.NewMockClient(t)
	mc.On("ChatCompletion", mock.Anything, promptContains("TDLR")).
		Return(mocks.Reply("TACLA00012345C | Bob | Active"), nil)
	mc.On("ChatCompletion", mock.Anything, promptContains("building permits")).
		Return(nil, errors.New("perplexity: unexpected status 500"))
	mc.On("ChatCompletion", mock.Anything, promptContains("star rating")).
		Return(mocks.Reply("Google: 4.9 (40 reviews)"), nil)

	site := srv.URL
	b := &model.Business{
		ID:          1,
		Name:        "Acme Air",
		City:        "Temple",
		Website:     &site,
		SocialLinks: []model.SocialLink{{Platform: model.SocialFacebook, URL: "https://facebook.com/keep-me"}},
		Permits:     []model.Permit{{Number: "OLD"}},
	}

	en := NewEnricher(mc, WebsiteConfig{Retries: 0}).Enrich(context.Background(), b)
	assert.Equal(t, []string{AdapterPermits}, en.Failed)
	assert.Len(t, en.Licenses, 1)
	assert.Len(t, en.Reviews, 1)
	assert.Len(t, en.SocialLinks, 2)

	require.True(t, en.Apply(b))
	assert.Equal(t, "OLD", b.Permits[0].Number, "failed adapter keeps existing data")
	assert.Equal(t, "https://facebook.com/keep-me", b.SocialURL(model.SocialFacebook))
	assert.Equal(t, "https://www.instagram.com/acmeair/", b.SocialURL(model.SocialInstagram))
	assert.Equal(t, 40, b.TotalReviewCount())

	assert.False(t, Enrichment{}.Apply(b))
}

func TestEnricher_SkipsWebsiteWithoutURL(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("ChatCompletion", mock.Anything, mock.Anything).Return(mocks.Reply("NONE"), nil).Times(3)

	en := NewEnricher(mc, WebsiteConfig{}).Enrich(context.Background(), &model.Business{Name: "No Site HVAC"})
	assert.Empty(t, en.Failed)
	assert.Empty(t, en.SocialLinks)
}

func TestPlaces_Lookup(t *testing.T) {
	ctx := context.Background()
	b := &model.Business{Name: "Acme Air LLC", City: "Temple"}

	t.Run("matches extended listing name", func(t *testing.T) {
		gc := googlemocks.NewMockClient(t)
		gc.On("TextSearch", ctx, "Acme Air LLC Temple, TX").Return(googlemocks.Places(
			google.Place{DisplayName: google.DisplayName{Text: "Acme Heating"}, Rating: 3.1, UserRatingCount: 9},
			google.Place{
				DisplayName:         google.DisplayName{Text: "Acme Air Heating & Cooling"},
				Rating:              4.7,
				UserRatingCount:     188,
				NationalPhoneNumber: "(254) 555-0100",
				WebsiteURI:          "https://acmeair.com/",
				GoogleMapsURI:       "https://maps.google.com/?cid=1",
			},
		), nil).Once()

		m, err := NewPlaces(gc).Lookup(ctx, b)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, model.Review{Source: model.ReviewGoogle, Rating: 4.7, ReviewCount: 188, URL: "https://maps.google.com/?cid=1"}, m.Review)
		assert.Equal(t, "(254) 555-0100", m.Phone)
	})

	t.Run("skips closed and unrelated listings", func(t *testing.T) {
		gc := googlemocks.NewMockClient(t)
		gc.On("TextSearch", ctx, mock.Anything).Return(googlemocks.Places(
			google.Place{DisplayName: google.DisplayName{Text: "Acme Air"}, BusinessStatus: "CLOSED_PERMANENTLY"},
			google.Place{DisplayName: google.DisplayName{Text: "Acmeair Supply"}},
		), nil).Once()

		m, err := NewPlaces(gc).Lookup(ctx, b)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("error", func(t *testing.T) {
		gc := googlemocks.NewMockClient(t)
		gc.On("TextSearch", ctx, mock.Anything).Return(nil, errors.New("google: unexpected status 403")).Once()

		_, err := NewPlaces(gc).Lookup(ctx, b)
		assert.ErrorContains(t, err, "sources: places search")
	})
}

func TestEnricher_WithPlaces(t *testing.T) {
	mc := mocks.NewMockClient(t)
	mc.On("ChatCompletion", mock.Anything, promptContains("star rating")).
		Return(mocks.Reply("Google: 4.1 (20 reviews)\nYelp: 3.5 (8 reviews)"), nil)
	mc.On("ChatCompletion", mock.Anything, mock.Anything).Return(mocks.Reply("NONE"), nil)

	gc := googlemocks.NewMockClient(t)
	gc.On("TextSearch", mock.Anything, mock.Anything).Return(googlemocks.Places(google.Place{
		DisplayName:         google.DisplayName{Text: "No Site HVAC"},
		Rating:              4.8,
		UserRatingCount:     96,
		NationalPhoneNumber: "(254) 555-0199",
		WebsiteURI:          "http://www.nositehvac.com/",
	}), nil).Once()

	b := &model.Business{Name: "No Site HVAC", City: "Killeen"}
	en := NewEnricher(mc, WebsiteConfig{}, WithPlaces(gc)).Enrich(context.Background(), b)
	assert.Empty(t, en.Failed)
	require.Len(t, en.Reviews, 2)

	require.True(t, en.Apply(b))
	assert.Equal(t, 96+8, b.TotalReviewCount(), "places rating replaces the searched Google entry")
	assert.Equal(t, "(254) 555-0199", b.Phone)
	require.True(t, b.HasWebsite())
	assert.Equal(t, "https://nositehvac.com", *b.Website)
}

func TestWithReview(t *testing.T) {
	got := withReview([]model.Review{
		{Source: model.ReviewGoogle, ReviewCount: 1},
		{Source: model.ReviewYelp, ReviewCount: 2},
	}, model.Review{Source: model.ReviewGoogle, ReviewCount: 3})
	assert.Equal(t, []model.Review{
		{Source: model.ReviewYelp, ReviewCount: 2},
		{Source: model.ReviewGoogle, ReviewCount: 3},
	}, got)
}
