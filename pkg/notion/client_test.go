package notion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	var _ Client = (*MockClient)(nil)
}

func TestNewClient_RateLimit(t *testing.T) {
	c := NewClient("secret").(*apiClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, float64(DefaultRateLimit), float64(c.limiter.Limit()), 0.001)

	c = NewClient("secret", WithRateLimit(10)).(*apiClient)
	assert.Equal(t, 10, c.limiter.Burst())

	c = NewClient("secret", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
}

func TestRateLimit_ContextCanceled(t *testing.T) {
	c := NewClient("secret", WithRateLimit(0.001)).(*apiClient)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit before create page")
}

func TestThrottled(t *testing.T) {
	c := NewClient("secret", WithRateLimit(0)).(*apiClient)

	v, err := throttled(context.Background(), c, "query database db-1", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = throttled(context.Background(), c, "update page p-1", func() (*notionapi.Page, error) {
		return nil, errors.New("object_not_found")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: update page p-1")
	assert.Contains(t, err.Error(), "object_not_found")
}
