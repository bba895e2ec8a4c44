package core

import "context"

// Entity is a locally known entity, e.g. an online player.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ValueSource produces the local value of a metric for an entity. ok is false
// when the value is unavailable, which is a normal outcome.
type ValueSource interface {
	Value(ctx context.Context, entityID, metric string) (value string, ok bool)
}

// EntityDirectory lists the entities currently known on this node.
type EntityDirectory interface {
	Entities(ctx context.Context) []Entity
}

// ValueSourceFunc adapts a function to ValueSource.
type ValueSourceFunc func(ctx context.Context, entityID, metric string) (string, bool)

func (f ValueSourceFunc) Value(ctx context.Context, entityID, metric string) (string, bool) {
	return f(ctx, entityID, metric)
}

// StaticDirectory is a fixed entity list.
type StaticDirectory []Entity

func (d StaticDirectory) Entities(ctx context.Context) []Entity {
	return d
}
