package sync

import (
	"context"
	"sort"

	"github.com/iudanet/taskkeeper/internal/models"
)

//go:generate moq -out remoteapi_mock.go . RemoteAPI

// RemoteAPI is the part of the backend client the engine needs.
type RemoteAPI interface {
	CreateEntity(ctx context.Context, entityType models.EntityType, payload models.Payload) (models.Payload, error)
	UpdateEntity(ctx context.Context, entityType models.EntityType, id string, payload models.Payload) (models.Payload, error)
	DeleteEntity(ctx context.Context, entityType models.EntityType, id string) error
	GetEntity(ctx context.Context, entityType models.EntityType, id string) (models.Payload, error)
}

// Handler replays mutations of one entity type against the server.
type Handler interface {
	Create(ctx context.Context, payload models.Payload) (models.Payload, error)
	Update(ctx context.Context, id string, payload models.Payload) (models.Payload, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (models.Payload, error)
}

// EntityHandler maps handler calls onto the REST resource of its entity type.
type EntityHandler struct {
	api        RemoteAPI
	entityType models.EntityType
}

// NewEntityHandler returns a handler for entityType backed by api.
func NewEntityHandler(api RemoteAPI, entityType models.EntityType) *EntityHandler {
	return &EntityHandler{api: api, entityType: entityType}
}

// Create sends the payload without a client-assigned id; the server assigns its own.
func (h *EntityHandler) Create(ctx context.Context, payload models.Payload) (models.Payload, error) {
	body := payload.Clone()
	if models.IsLocalID(body.EntityID()) {
		delete(body, models.FieldID)
	}
	return h.api.CreateEntity(ctx, h.entityType, body)
}

// Update sends the full local version of the entity.
func (h *EntityHandler) Update(ctx context.Context, id string, payload models.Payload) (models.Payload, error) {
	return h.api.UpdateEntity(ctx, h.entityType, id, payload)
}

// Delete removes the entity.
func (h *EntityHandler) Delete(ctx context.Context, id string) error {
	return h.api.DeleteEntity(ctx, h.entityType, id)
}

// Get fetches the current server version.
func (h *EntityHandler) Get(ctx context.Context, id string) (models.Payload, error) {
	return h.api.GetEntity(ctx, h.entityType, id)
}

// Registry maps entity types to handlers. Supporting a new entity type means
// registering a handler for it.
type Registry struct {
	handlers map[models.EntityType]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.EntityType]Handler)}
}

// DefaultRegistry registers REST handlers for tasks and notes.
func DefaultRegistry(api RemoteAPI) *Registry {
	r := NewRegistry()
	r.Register(models.EntityTask, NewEntityHandler(api, models.EntityTask))
	r.Register(models.EntityNote, NewEntityHandler(api, models.EntityNote))
	return r
}

// Register sets the handler for entityType, replacing any previous one.
// Registration happens during setup, before the engine runs.
func (r *Registry) Register(entityType models.EntityType, h Handler) {
	r.handlers[entityType] = h
}

// Handler returns the handler for entityType.
func (r *Registry) Handler(entityType models.EntityType) (Handler, bool) {
	h, ok := r.handlers[entityType]
	return h, ok
}

// Types returns the registered entity types in sorted order.
func (r *Registry) Types() []models.EntityType {
	types := make([]models.EntityType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
