package client

import (
	"context"

	"github.com/brianly1003/notepadtt/internal/domain"
)

// TabsClient wraps the tab methods.
type TabsClient struct {
	client *Client
}

// NewTabsClient connects to the server at url.
func NewTabsClient(ctx context.Context, url string, opts ...Option) (*TabsClient, error) {
	client, err := NewClient(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	return &TabsClient{client: client}, nil
}

// Info returns the current snapshot.
func (tc *TabsClient) Info(ctx context.Context) (*domain.Info, error) {
	var info domain.Info
	if err := tc.client.Result(ctx, "GetInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Update submits an edited snapshot and returns the one the server installed.
func (tc *TabsClient) Update(ctx context.Context, next *domain.Info) (*domain.Info, error) {
	var info domain.Info
	if err := tc.client.Result(ctx, "InfoChanged", next, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Content reads a tab's text. The subscription taken to read it is released
// before returning.
func (tc *TabsClient) Content(ctx context.Context, fileID string) (*domain.TabContent, error) {
	params := map[string]string{"fileId": fileID}

	var content domain.TabContent
	if err := tc.client.Result(ctx, "SubscribeTabContent", params, &content); err != nil {
		return nil, err
	}
	if err := tc.client.Result(ctx, "UnsubscribeTabContent", params, nil); err != nil {
		return nil, err
	}
	return &content, nil
}

// SetContent replaces a tab's text.
func (tc *TabsClient) SetContent(ctx context.Context, fileID, text string) error {
	return tc.client.Result(ctx, "TabContentChanged", map[string]string{
		"fileId": fileID,
		"text":   text,
	}, nil)
}

// Close closes the connection.
func (tc *TabsClient) Close() error {
	return tc.client.Close()
}
