package crmsync

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/pkg/salesforce"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

// fakeSalesforce records calls and serves scripted lookups.
type fakeSalesforce struct {
	existing  []salesforce.Account
	inserted  []map[string]any
	updated   map[string]map[string]any
	insertErr error
}

func (f *fakeSalesforce) Query(_ context.Context, _ string, out any) error {
	*out.(*[]salesforce.Account) = f.existing
	return nil
}

func (f *fakeSalesforce) InsertOne(_ context.Context, _ string, record map[string]any) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, record)
	return "001NEW", nil
}

func (f *fakeSalesforce) UpdateOne(_ context.Context, _ string, id string, fields map[string]any) error {
	if f.updated == nil {
		f.updated = make(map[string]map[string]any)
	}
	f.updated[id] = fields
	return nil
}

func target() (*model.Business, *scoring.Score) {
	site := "https://acmeair.com"
	b := &model.Business{ID: 42, Name: "Acme Air LLC", City: "Temple", County: "Bell", State: "TX", Website: &site}
	sc := &scoring.Score{BusinessID: 42, OverallScore: 78, Recommendation: scoring.HighPriority}
	return b, sc
}

func TestNotionSink_CreatesPage(t *testing.T) {
	ctx := context.Background()
	mc := new(mockNotion)
	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		score, ok := req.Properties[PropScore].(notionapi.NumberProperty)
		rec, _ := req.Properties[PropRecommendation].(notionapi.SelectProperty)
		key, _ := req.Properties[PropTargetID].(notionapi.RichTextProperty)
		return req.Parent.DatabaseID == "db-1" && ok && score.Number == 78 &&
			rec.Select.Name == "HIGH_PRIORITY" && req.Properties[PropWebsite] != nil &&
			len(key.RichText) == 1 && key.RichText[0].Text.Content == "42"
	})).Return(&notionapi.Page{ID: "page-new"}, nil).Once()

	b, sc := target()
	require.NoError(t, NewNotionSink(mc, "db-1").Push(ctx, b, sc))
	assert.Equal(t, "page-new", b.NotionPageID)
	mc.AssertExpectations(t)
}

func TestNotionSink_UpdatesKnownPage(t *testing.T) {
	ctx := context.Background()
	mc := new(mockNotion)
	mc.On("UpdatePage", ctx, "page-1", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	b, sc := target()
	b.NotionPageID = "page-1"
	require.NoError(t, NewNotionSink(mc, "db-1").Push(ctx, b, sc))
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
	mc.AssertExpectations(t)
}

func TestNotionSink_AdoptsExistingPage(t *testing.T) {
	ctx := context.Background()
	mc := new(mockNotion)
	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-found"}}}, nil).Once()
	mc.On("UpdatePage", ctx, "page-found", mock.Anything).
		Return(&notionapi.Page{ID: "page-found"}, nil).Once()

	b, sc := target()
	require.NoError(t, NewNotionSink(mc, "db-1").Push(ctx, b, sc))
	assert.Equal(t, "page-found", b.NotionPageID)
	mc.AssertExpectations(t)
}

func TestNotionSink_CreateError(t *testing.T) {
	ctx := context.Background()
	mc := new(mockNotion)
	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil)
	mc.On("CreatePage", ctx, mock.Anything).Return(nil, errors.New("validation_error"))

	b, sc := target()
	err := NewNotionSink(mc, "db-1").Push(ctx, b, sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crmsync: notion push")
	assert.Contains(t, err.Error(), "validation_error")
	assert.Empty(t, b.NotionPageID)
}

func TestSalesforceSink(t *testing.T) {
	t.Run("creates account", func(t *testing.T) {
		sf := &fakeSalesforce{}
		b, sc := target()
		require.NoError(t, NewSalesforceSink(sf).Push(context.Background(), b, sc))
		assert.Equal(t, "001NEW", b.SalesforceID)
		require.Len(t, sf.inserted, 1)
		fields := sf.inserted[0]
		assert.Equal(t, "Acme Air LLC", fields["Name"])
		assert.Equal(t, "Temple", fields["BillingCity"])
		assert.Equal(t, "TX", fields["BillingState"])
		assert.Equal(t, "https://acmeair.com", fields["Website"])
		assert.Equal(t, 78, fields[salesforce.FieldAcquisitionScore])
		assert.Equal(t, "HIGH_PRIORITY", fields[salesforce.FieldRecommendation])
	})

	t.Run("updates recorded account", func(t *testing.T) {
		sf := &fakeSalesforce{}
		b, sc := target()
		b.SalesforceID = "001KNOWN"
		require.NoError(t, NewSalesforceSink(sf).Push(context.Background(), b, sc))
		assert.Contains(t, sf.updated, "001KNOWN")
		assert.Empty(t, sf.inserted)
	})

	t.Run("matches by website", func(t *testing.T) {
		sf := &fakeSalesforce{existing: []salesforce.Account{{ID: "001WEB"}}}
		b, sc := target()
		require.NoError(t, NewSalesforceSink(sf).Push(context.Background(), b, sc))
		assert.Equal(t, "001WEB", b.SalesforceID)
		assert.Contains(t, sf.updated, "001WEB")
	})

	t.Run("no website skips lookup", func(t *testing.T) {
		sf := &fakeSalesforce{existing: []salesforce.Account{{ID: "001WEB"}}}
		b, sc := target()
		b.Website = nil
		require.NoError(t, NewSalesforceSink(sf).Push(context.Background(), b, sc))
		assert.Equal(t, "001NEW", b.SalesforceID)
		assert.NotContains(t, sf.inserted[0], "Website")
	})

	t.Run("insert error", func(t *testing.T) {
		sf := &fakeSalesforce{insertErr: errors.New("DUPLICATE_VALUE")}
		b, sc := target()
		err := NewSalesforceSink(sf).Push(context.Background(), b, sc)
		assert.ErrorContains(t, err, "crmsync: salesforce create")
		assert.Empty(t, b.SalesforceID)
	})
}
