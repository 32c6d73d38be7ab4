package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient implements Client with overridable funcs.
type mockClient struct {
	queryFn     func(ctx context.Context, soql string, out any) error
	insertOneFn func(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	updateOneFn func(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, sObjectName, record)
	}
	return "001000000000001", nil
}

func (m *mockClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if m.updateOneFn != nil {
		return m.updateOneFn(ctx, sObjectName, id, fields)
	}
	return nil
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	var _ Client = (*mockClient)(nil)
}

func TestFindAccountByWebsite(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		var soql string
		mc := &mockClient{queryFn: func(_ context.Context, q string, out any) error {
			soql = q
			*out.(*[]Account) = []Account{{ID: "001A", Name: "Acme Air LLC"}}
			return nil
		}}
		acct, err := FindAccountByWebsite(context.Background(), mc, "https://acmeair.com")
		require.NoError(t, err)
		require.NotNil(t, acct)
		assert.Equal(t, "001A", acct.ID)
		assert.Contains(t, soql, "Website = 'https://acmeair.com'")
		assert.Contains(t, soql, FieldAcquisitionScore)
	})

	t.Run("none", func(t *testing.T) {
		acct, err := FindAccountByWebsite(context.Background(), &mockClient{}, "https://nowhere.com")
		require.NoError(t, err)
		assert.Nil(t, acct)
	})

	t.Run("empty website skips query", func(t *testing.T) {
		mc := &mockClient{queryFn: func(context.Context, string, any) error {
			t.Fatal("unexpected query")
			return nil
		}}
		acct, err := FindAccountByWebsite(context.Background(), mc, "")
		require.NoError(t, err)
		assert.Nil(t, acct)
	})

	t.Run("escapes quotes", func(t *testing.T) {
		var soql string
		mc := &mockClient{queryFn: func(_ context.Context, q string, _ any) error {
			soql = q
			return nil
		}}
		_, err := FindAccountByWebsite(context.Background(), mc, "https://o'neil.com")
		require.NoError(t, err)
		assert.Contains(t, soql, `o\'neil`)
	})

	t.Run("error", func(t *testing.T) {
		mc := &mockClient{queryFn: func(context.Context, string, any) error { return errors.New("boom") }}
		_, err := FindAccountByWebsite(context.Background(), mc, "https://acmeair.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find account by website")
	})
}

func TestCreateAccount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var object string
		mc := &mockClient{insertOneFn: func(_ context.Context, sObject string, _ map[string]any) (string, error) {
			object = sObject
			return "001NEW", nil
		}}
		id, err := CreateAccount(context.Background(), mc, map[string]any{"Name": "Acme Air LLC"})
		require.NoError(t, err)
		assert.Equal(t, "001NEW", id)
		assert.Equal(t, "Account", object)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := CreateAccount(context.Background(), &mockClient{}, map[string]any{"Website": "https://acmeair.com"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name is required")
	})

	t.Run("propagates error", func(t *testing.T) {
		mc := &mockClient{insertOneFn: func(context.Context, string, map[string]any) (string, error) {
			return "", errors.New("api error")
		}}
		_, err := CreateAccount(context.Background(), mc, map[string]any{"Name": "Acme"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create account")
	})
}

func TestUpdateAccount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotID string
		mc := &mockClient{updateOneFn: func(_ context.Context, _ string, id string, _ map[string]any) error {
			gotID = id
			return nil
		}}
		require.NoError(t, UpdateAccount(context.Background(), mc, "001A", map[string]any{FieldRecommendation: "HIGH_PRIORITY"}))
		assert.Equal(t, "001A", gotID)
	})

	t.Run("validation", func(t *testing.T) {
		err := UpdateAccount(context.Background(), &mockClient{}, "", map[string]any{"Name": "x"})
		assert.ErrorContains(t, err, "account id is required")
		err = UpdateAccount(context.Background(), &mockClient{}, "001A", nil)
		assert.ErrorContains(t, err, "no fields to update")
	})

	t.Run("propagates error", func(t *testing.T) {
		mc := &mockClient{updateOneFn: func(context.Context, string, string, map[string]any) error {
			return errors.New("api error")
		}}
		err := UpdateAccount(context.Background(), mc, "001A", map[string]any{"Name": "x"})
		assert.ErrorContains(t, err, "update account 001A")
	})
}
