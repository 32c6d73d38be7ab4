package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Board is a Notion database holding one page per record. Each page carries
// the record's key in a rich text property so a lost page ID can be recovered.
type Board struct {
	client  Client
	dbID    string
	keyProp string
}

// NewBoard binds c to database dbID, keying pages by keyProp.
func NewBoard(c Client, dbID, keyProp string) *Board {
	return &Board{client: c, dbID: dbID, keyProp: keyProp}
}

// Find returns the ID of the page keyed by key, or "" when there is none.
func (b *Board) Find(ctx context.Context, key string) (string, error) {
	page, err := FindPageByText(ctx, b.client, b.dbID, b.keyProp, key)
	if err != nil {
		return "", err
	}
	if page == nil {
		return "", nil
	}
	return string(page.ID), nil
}

// Upsert writes props to the record's page and returns the page ID. pageID
// is the last known page; when empty the page is looked up by key and
// created if missing. The key property is always set.
func (b *Board) Upsert(ctx context.Context, pageID, key string, props notionapi.Properties) (string, error) {
	if props == nil {
		props = notionapi.Properties{}
	}
	props[b.keyProp] = Text(key)

	if pageID == "" {
		found, err := b.Find(ctx, key)
		if err != nil {
			return "", eris.Wrapf(err, "notion: board lookup %s", key)
		}
		pageID = found
	}

	if pageID != "" {
		if _, err := b.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", err
		}
		return pageID, nil
	}

	page, err := b.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", err
	}
	return string(page.ID), nil
}
