// Package crmsync pushes scored acquisition targets to the CRMs the deal team
// works from.
package crmsync

import (
	"context"
	"strconv"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/pkg/notion"
	"github.com/sells-group/hvac-targets/pkg/salesforce"
)

// Sink receives one business and its latest score. A sink that creates a
// remote record writes the remote ID back onto the business.
type Sink interface {
	Name() string
	Push(ctx context.Context, b *model.Business, sc *scoring.Score) error
}

// Notion board property names.
const (
	PropName           = "Name"
	PropCity           = "City"
	PropCounty         = "County"
	PropWebsite        = "Website"
	PropScore          = "Score"
	PropRecommendation = "Recommendation"
	PropTargetID       = "Target ID"
)

// NotionSink keeps one page per business on a Notion board keyed by the
// business ID.
type NotionSink struct {
	board *notion.Board
}

// NewNotionSink creates a sink writing to database dbID.
func NewNotionSink(c notion.Client, dbID string) *NotionSink {
	return &NotionSink{board: notion.NewBoard(c, dbID, PropTargetID)}
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

// Push updates the business's page, creating it when neither the stored page
// ID nor a Target ID lookup finds one.
func (s *NotionSink) Push(ctx context.Context, b *model.Business, sc *scoring.Score) error {
	pageID, err := s.board.Upsert(ctx, b.NotionPageID, strconv.FormatInt(b.ID, 10), boardProperties(b, sc))
	if err != nil {
		return eris.Wrap(err, "crmsync: notion push")
	}
	b.NotionPageID = pageID
	return nil
}

func boardProperties(b *model.Business, sc *scoring.Score) notionapi.Properties {
	props := notionapi.Properties{
		PropName:           notion.Title(b.Name),
		PropCity:           notion.Text(b.City),
		PropCounty:         notion.Text(b.County),
		PropScore:          notion.Number(float64(sc.OverallScore)),
		PropRecommendation: notion.Select(string(sc.Recommendation)),
	}
	if b.HasWebsite() {
		props[PropWebsite] = notion.URL(*b.Website)
	}
	return props
}

// SalesforceSink keeps one Account per business.
type SalesforceSink struct {
	client salesforce.Client
}

// NewSalesforceSink creates a sink writing Accounts through c.
func NewSalesforceSink(c salesforce.Client) *SalesforceSink {
	return &SalesforceSink{client: c}
}

// Name implements Sink.
func (s *SalesforceSink) Name() string { return "salesforce" }

// Push updates the recorded Account, or one matched by website, and creates
// a new Account otherwise.
func (s *SalesforceSink) Push(ctx context.Context, b *model.Business, sc *scoring.Score) error {
	fields := accountFields(b, sc)

	id := b.SalesforceID
	if id == "" && b.HasWebsite() {
		acct, err := salesforce.FindAccountByWebsite(ctx, s.client, *b.Website)
		if err != nil {
			return eris.Wrap(err, "crmsync: salesforce lookup")
		}
		if acct != nil {
			id = acct.ID
		}
	}

	if id != "" {
		if err := salesforce.UpdateAccount(ctx, s.client, id, fields); err != nil {
			return eris.Wrap(err, "crmsync: salesforce update")
		}
		b.SalesforceID = id
		return nil
	}

	id, err := salesforce.CreateAccount(ctx, s.client, fields)
	if err != nil {
		return eris.Wrap(err, "crmsync: salesforce create")
	}
	b.SalesforceID = id
	return nil
}

func accountFields(b *model.Business, sc *scoring.Score) map[string]any {
	fields := map[string]any{
		"Name":                           b.Name,
		"BillingCity":                    b.City,
		"BillingState":                   b.State,
		salesforce.FieldAcquisitionScore: sc.OverallScore,
		salesforce.FieldRecommendation:   string(sc.Recommendation),
	}
	if b.HasWebsite() {
		fields["Website"] = *b.Website
	}
	return fields
}
