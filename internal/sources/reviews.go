package sources

import (
	"context"

	"github.com/sells-group/hvac-targets/internal/extract"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
)

const reviewPrompt = `Report the current star rating and review count for the HVAC company
"{{.Name}}" in {{.City}}, Texas on Google, Yelp, BBB, Facebook and Angi.
One line per source where the company is listed, formatted exactly as:
<Source>: <rating> (<count> reviews)`

// Reviews looks up aggregate ratings per review site.
type Reviews struct {
	asker *asker
}

// NewReviews creates a review lookup over client.
func NewReviews(client perplexity.Client) *Reviews {
	return &Reviews{asker: newAsker(client, "review", reviewPrompt)}
}

// Lookup returns one review aggregate per source found for b.
func (r *Reviews) Lookup(ctx context.Context, b *model.Business) ([]model.Review, error) {
	text, err := r.asker.ask(ctx, subjectOf(b))
	if err != nil {
		return nil, err
	}
	return extract.ParseReviews(text), nil
}
