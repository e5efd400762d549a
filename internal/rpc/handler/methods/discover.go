package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/message"
)

// DiscoverService answers rpc.discover with the OpenRPC description of every
// registered method.
type DiscoverService struct {
	registry  *handler.Registry
	info      handler.OpenRPCInfo
	serverURL string
}

// NewDiscoverService creates a discovery service over registry.
func NewDiscoverService(registry *handler.Registry, info handler.OpenRPCInfo, serverURL string) *DiscoverService {
	return &DiscoverService{registry: registry, info: info, serverURL: serverURL}
}

// RegisterMethods registers rpc.discover.
func (s *DiscoverService) RegisterMethods(registry *handler.Registry) {
	registry.RegisterWithMeta("rpc.discover", s.Discover, handler.MethodMeta{
		Summary: "Describe the API",
		Params:  []handler.OpenRPCParam{},
		Result: &handler.OpenRPCResult{
			Name:   "openrpc",
			Schema: map[string]interface{}{"type": "object"},
		},
	})
}

// Discover returns the OpenRPC document.
func (s *DiscoverService) Discover(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	return s.registry.GenerateOpenRPC(s.info, s.serverURL), nil
}
