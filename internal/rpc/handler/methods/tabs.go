// Package methods provides JSON-RPC method implementations.
package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// InfoState is the authoritative tab snapshot.
type InfoState interface {
	GetSnapshot() (*domain.Info, error)
	ApplyClientUpdate(next *domain.Info) (*domain.Info, error)
	ReconcileFromDisk() (bool, error)
}

// ContentStore reads and writes tab bodies by file id.
type ContentStore interface {
	Load(fileID string) (*domain.TabContent, error)
	Save(fileID, text string) error
}

// Subscriptions tracks which connections follow which tab.
type Subscriptions interface {
	Add(fileID, connID string)
	Remove(fileID, connID string)
	List(fileID string) []string
	RemoveAll(connID string) int
}

// Publisher pushes events to connected clients.
type Publisher interface {
	Publish(event events.Event)
	PublishTo(ids []string, event events.Event)
}

// TabsService implements the tab synchronization methods.
type TabsService struct {
	state   InfoState
	content ContentStore
	subs    Subscriptions
	hub     Publisher
}

// NewTabsService creates a new tabs service.
func NewTabsService(state InfoState, content ContentStore, subs Subscriptions, hub Publisher) *TabsService {
	return &TabsService{
		state:   state,
		content: content,
		subs:    subs,
		hub:     hub,
	}
}

// FileIDParams addresses a single tab.
type FileIDParams struct {
	FileID string `json:"fileId"`
}

// TabContentParams carries a new body for a tab.
type TabContentParams struct {
	FileID string  `json:"fileId"`
	Text   *string `json:"text"`
}

// RegisterMethods registers all tab methods with the handler.
func (s *TabsService) RegisterMethods(registry *handler.Registry) {
	fileIDParam := handler.OpenRPCParam{
		Name:     "fileId",
		Required: true,
		Schema:   map[string]interface{}{"type": "string"},
	}

	registry.RegisterWithMeta("InfoChanged", s.InfoChanged, handler.MethodMeta{
		Summary:     "Apply a client snapshot",
		Description: "Applies renames, deletions, creations, reordering and active/protected changes. The changeToken must match the server's current token. On success every client receives an info notification.",
		Params: []handler.OpenRPCParam{
			{Name: "info", Required: true, Schema: handler.SchemaRef("Info")},
		},
		Result: &handler.OpenRPCResult{Name: "info", Schema: handler.SchemaRef("Info")},
		Errors: []string{"Conflict", "InvalidFilename", "PermissionDenied"},
	})

	registry.RegisterWithMeta("SubscribeTabContent", s.SubscribeTabContent, handler.MethodMeta{
		Summary:     "Follow a tab's content",
		Description: "Registers the caller for tabContent notifications of one tab and returns its current content.",
		Params:      []handler.OpenRPCParam{fileIDParam},
		Result:      &handler.OpenRPCResult{Name: "content", Schema: handler.SchemaRef("TabContent")},
	})

	registry.RegisterWithMeta("UnsubscribeTabContent", s.UnsubscribeTabContent, handler.MethodMeta{
		Summary:     "Stop following a tab's content",
		Params:      []handler.OpenRPCParam{fileIDParam},
		Result: &handler.OpenRPCResult{
			Name:   "result",
			Schema: map[string]interface{}{"type": "object"},
		},
	})

	registry.RegisterWithMeta("TabContentChanged", s.TabContentChanged, handler.MethodMeta{
		Summary:     "Save a tab's content",
		Description: "Persists the text and pushes it to every other subscriber of the tab.",
		Params: []handler.OpenRPCParam{
			fileIDParam,
			{Name: "text", Required: true, Schema: map[string]interface{}{"type": "string"}},
		},
		Result: &handler.OpenRPCResult{
			Name:   "result",
			Schema: map[string]interface{}{"type": "object"},
		},
		Errors: []string{"NotFoundIdentifier", "ContentTooLarge", "PermissionDenied"},
	})

	registry.RegisterWithMeta("GetInfo", s.GetInfo, handler.MethodMeta{
		Summary: "Get the current snapshot",
		Params:  []handler.OpenRPCParam{},
		Result:  &handler.OpenRPCResult{Name: "info", Schema: handler.SchemaRef("Info")},
		Errors:  []string{"PermissionDenied"},
	})
}

// InfoChanged applies a snapshot edited by the client.
func (s *TabsService) InfoChanged(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var next domain.Info
	if err := decodeParams(params, &next); err != nil {
		return nil, err
	}
	if next.TabInfos == nil {
		return nil, message.ErrInvalidParams("tabInfos is required")
	}

	info, err := s.state.ApplyClientUpdate(&next)
	if err != nil && info != nil {
		// the snapshot was installed but not persisted; peers still need it
		log.Error().Err(err).Str("change_token", info.ChangeToken).Msg("tab update applied without persisting metadata")
		s.hub.Publish(events.NewInfoEvent(info))
		return nil, message.FromDomainError(err)
	}
	if err != nil {
		log.Info().
			Err(err).
			Str("client_id", handler.ClientID(ctx)).
			Str("change_token", next.ChangeToken).
			Msg("client snapshot rejected")
		return nil, message.FromDomainError(err)
	}

	s.hub.Publish(events.NewInfoEvent(info))
	return info, nil
}

// SubscribeTabContent registers the caller for a tab and returns its content.
func (s *TabsService) SubscribeTabContent(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p FileIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.FileID == "" {
		return nil, message.ErrInvalidParams("fileId is required")
	}

	if connID := handler.ClientID(ctx); connID != "" {
		s.subs.Add(p.FileID, connID)
	}

	content, err := s.content.Load(p.FileID)
	if err != nil {
		return nil, message.FromDomainError(err)
	}
	return content, nil
}

// UnsubscribeTabContent removes the caller from a tab's subscribers.
func (s *TabsService) UnsubscribeTabContent(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p FileIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.FileID == "" {
		return nil, message.ErrInvalidParams("fileId is required")
	}

	s.subs.Remove(p.FileID, handler.ClientID(ctx))
	return map[string]interface{}{}, nil
}

// TabContentChanged saves new text and relays it to the tab's other subscribers.
func (s *TabsService) TabContentChanged(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p TabContentParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.FileID == "" {
		return nil, message.ErrInvalidParams("fileId is required")
	}
	if p.Text == nil {
		return nil, message.ErrInvalidParams("text is required")
	}

	if err := s.content.Save(p.FileID, *p.Text); err != nil {
		return nil, message.FromDomainError(err)
	}

	caller := handler.ClientID(ctx)
	others := lo.Without(s.subs.List(p.FileID), caller)
	if len(others) > 0 {
		s.hub.PublishTo(others, events.NewTabContentEvent(domain.TabContent{
			FileID: p.FileID,
			Text:   *p.Text,
		}))
	}
	return map[string]interface{}{}, nil
}

// GetInfo returns the current snapshot to the caller.
func (s *TabsService) GetInfo(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	info, err := s.state.GetSnapshot()
	if err != nil {
		return nil, message.FromDomainError(err)
	}
	return info, nil
}

func decodeParams(params json.RawMessage, v interface{}) *message.Error {
	if len(params) == 0 {
		return message.ErrInvalidParams("params are required")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return message.ErrInvalidParams("invalid params: " + err.Error())
	}
	return nil
}
