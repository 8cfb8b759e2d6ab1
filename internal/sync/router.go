package sync

import (
	"context"
	"encoding/json"
	"errors"

	"tillsync/internal/domain"
	"tillsync/internal/models"

	"github.com/rs/zerolog"
)

// Decision is the routing outcome for one entity type. The table is
// fixed at construction; Resolve is a pure lookup.
type Decision struct {
	Action           string
	TargetType       string
	TargetCollection string
	ChildCollection  string
	ParentField      string
}

// Router maps inbound change notifications onto loader invocations. A
// change for a child entity (e.g. a lookup group item) reloads its
// owning parent; cosmetic entity types are documented no-ops; unknown
// types are reported, never silently dropped.
type Router struct {
	table  map[string]Decision
	loader domain.Loader
	store  domain.DocumentStore
	logger zerolog.Logger
}

func NewRouter(defs []models.EntityDefinition, loader domain.Loader, store domain.DocumentStore, logger *zerolog.Logger) *Router {
	byName := make(map[string]models.EntityDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	table := make(map[string]Decision, len(defs))
	for _, def := range defs {
		switch def.Action {
		case models.ActionIgnore:
			table[def.Name] = Decision{Action: models.ActionIgnore}
		case models.ActionReloadParent:
			parent := byName[def.Parent]
			table[def.Name] = Decision{
				Action:           models.ActionReloadParent,
				TargetType:       parent.Name,
				TargetCollection: parent.Collection,
				ChildCollection:  def.Collection,
				ParentField:      def.ParentField,
			}
		default:
			table[def.Name] = Decision{
				Action:           models.ActionLoad,
				TargetType:       def.Name,
				TargetCollection: def.Collection,
			}
		}
	}

	return &Router{
		table:  table,
		loader: loader,
		store:  store,
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Resolve returns the routing decision for an entity type.
func (r *Router) Resolve(entityType string) (Decision, bool) {
	d, ok := r.table[entityType]
	return d, ok
}

func (r *Router) Route(ctx context.Context, change models.ChangeNotification) models.FailureReason {
	decision, ok := r.Resolve(change.EntityType)
	if !ok {
		r.logger.Error().Str("entity_type", change.EntityType).Int64("entity_id", change.EntityID).Msg("unknown entity type in change notification")
		return models.FailureInconsistentData
	}

	switch decision.Action {
	case models.ActionIgnore:
		r.logger.Debug().Str("entity_type", change.EntityType).Msg("change ignored by routing table")
		return models.FailureNone

	case models.ActionReloadParent:
		parentID := r.resolveParentID(ctx, decision, change.EntityID)
		return r.loader.Load(ctx, decision.TargetType, decision.TargetCollection, parentID, change.OccurredAt)

	default:
		return r.loader.Load(ctx, decision.TargetType, decision.TargetCollection, change.EntityID, change.OccurredAt)
	}
}

// resolveParentID looks the owning entity id up in the locally stored
// child document. When the child is not stored (or the field is
// missing) the notification id is used directly; backends commonly emit
// the parent id for line-item level changes.
func (r *Router) resolveParentID(ctx context.Context, decision Decision, childID int64) int64 {
	if decision.ParentField == "" || decision.ChildCollection == "" {
		return childID
	}

	content, err := r.store.Get(ctx, decision.ChildCollection, liveKey(childID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn().Err(err).Int64("entity_id", childID).Msg("failed to read child document for parent lookup")
		}
		return childID
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		return childID
	}

	raw, ok := doc[decision.ParentField]
	if !ok {
		return childID
	}

	var parentID int64
	if err := json.Unmarshal(raw, &parentID); err != nil || parentID == 0 {
		return childID
	}
	return parentID
}
