package dashboard

import (
	"context"
	"errors"
	"sync"
)

// ErrNoAPI is returned when a refresh is requested before any API handle
// has been shared.
var ErrNoAPI = errors.New("dashboard api not available")

// API is the host dashboard capability kvedit depends on.
type API interface {
	RefreshVisualization(ctx context.Context, id string) error
}

// APIFunc adapts a function to API.
type APIFunc func(ctx context.Context, id string) error

func (f APIFunc) RefreshVisualization(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Bridge holds the shared API handle.
type Bridge struct {
	mu  sync.RWMutex
	api API
}

// NewBridge returns a bridge, optionally seeded with an API.
func NewBridge(api API) *Bridge {
	return &Bridge{api: api}
}

// SetAPI shares an API handle. Passing nil clears it.
func (b *Bridge) SetAPI(api API) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.api = api
}

// API returns the shared handle, or nil.
func (b *Bridge) API() API {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.api
}

// Refresh asks the host to refresh visualization id.
func (b *Bridge) Refresh(ctx context.Context, id string) error {
	api := b.API()
	if api == nil {
		return ErrNoAPI
	}
	return api.RefreshVisualization(ctx, id)
}

// RefreshButton is the toolbar action that refreshes one dashboard item.
type RefreshButton struct {
	ItemID  string
	Visible bool

	api API
}

// NewRefreshButton creates the button and shares api through the bridge so
// the table can refresh itself after writes.
func NewRefreshButton(bridge *Bridge, api API, itemID string, visible bool) *RefreshButton {
	if bridge != nil {
		bridge.SetAPI(api)
	}
	return &RefreshButton{ItemID: itemID, Visible: visible, api: api}
}

// Click refreshes the button's item. Without an API or item id it does nothing.
func (b *RefreshButton) Click(ctx context.Context) error {
	if b == nil || b.api == nil || b.ItemID == "" {
		return nil
	}
	return b.api.RefreshVisualization(ctx, b.ItemID)
}
