package sources

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/google"
)

// PlaceMatch is what a Google Business Profile adds to a business.
type PlaceMatch struct {
	Review  model.Review
	Phone   string
	Website string
}

// Places looks a business up on Google Places.
type Places struct {
	client google.Client
}

// NewPlaces creates a Places lookup over client.
func NewPlaces(client google.Client) *Places {
	return &Places{client: client}
}

// Lookup returns the listing whose name matches b, or nil when Google has
// none. Permanently closed listings are ignored.
func (p *Places) Lookup(ctx context.Context, b *model.Business) (*PlaceMatch, error) {
	query := b.Name
	if b.City != "" {
		query += " " + b.City
	}
	query += ", " + stateOf(b)

	resp, err := p.client.TextSearch(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sources: places search")
	}

	want := model.NameKey(b.Name)
	for _, pl := range resp.Places {
		if pl.Closed() || !sameBusiness(want, model.NameKey(pl.DisplayName.Text)) {
			continue
		}
		return &PlaceMatch{
			Review: model.Review{
				Source:      model.ReviewGoogle,
				Rating:      pl.Rating,
				ReviewCount: pl.UserRatingCount,
				URL:         pl.GoogleMapsURI,
			},
			Phone:   pl.NationalPhoneNumber,
			Website: pl.WebsiteURI,
		}, nil
	}
	return nil, nil
}

// sameBusiness accepts exact name keys and listings that extend the name,
// such as "Acme Air" listed as "Acme Air Heating & Cooling".
func sameBusiness(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return want == got || strings.HasPrefix(got, want+" ") || strings.HasPrefix(want, got+" ")
}

func stateOf(b *model.Business) string {
	if b.State != "" {
		return b.State
	}
	return "TX"
}

// withReview replaces the entry for r.Source in reviews, or appends r.
func withReview(reviews []model.Review, r model.Review) []model.Review {
	out := make([]model.Review, 0, len(reviews)+1)
	for _, existing := range reviews {
		if existing.Source != r.Source {
			out = append(out, existing)
		}
	}
	return append(out, r)
}
