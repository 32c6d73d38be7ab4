// Package mocks provides test doubles for the anthropic client.
package mocks

import (
	"context"

	anthropic "github.com/sells-group/hvac-targets/pkg/anthropic"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreateBatch provides a mock function with given fields: ctx, req
func (_m *MockClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	ret := _m.Called(ctx, req)

	var r0 *anthropic.BatchResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*anthropic.BatchResponse)
	}
	return r0, ret.Error(1)
}

// GetBatch provides a mock function with given fields: ctx, batchID
func (_m *MockClient) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	ret := _m.Called(ctx, batchID)

	if len(ret) == 0 {
		panic("no return value specified for GetBatch")
	}

	var r0 *anthropic.BatchResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*anthropic.BatchResponse)
	}
	return r0, ret.Error(1)
}

// GetBatchResults provides a mock function with given fields: ctx, batchID
func (_m *MockClient) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	ret := _m.Called(ctx, batchID)

	var r0 anthropic.BatchResultIterator
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(anthropic.BatchResultIterator)
	}
	return r0, ret.Error(1)
}

// CancelBatch provides a mock function with given fields: ctx, batchID
func (_m *MockClient) CancelBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	ret := _m.Called(ctx, batchID)

	var r0 *anthropic.BatchResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*anthropic.BatchResponse)
	}
	return r0, ret.Error(1)
}

// ResultIterator yields a fixed list of batch results.
type ResultIterator struct {
	Items  []anthropic.BatchResultItem
	Error  error
	idx    int
	Closed bool
}

// NewResultIterator returns an iterator over items.
func NewResultIterator(items ...anthropic.BatchResultItem) *ResultIterator {
	return &ResultIterator{Items: items, idx: -1}
}

func (it *ResultIterator) Next() bool {
	if it.idx+1 < len(it.Items) {
		it.idx++
		return true
	}
	return false
}

func (it *ResultIterator) Item() anthropic.BatchResultItem { return it.Items[it.idx] }

func (it *ResultIterator) Err() error { return it.Error }

func (it *ResultIterator) Close() error {
	it.Closed = true
	return nil
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
