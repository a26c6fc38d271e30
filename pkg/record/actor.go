package record

import "fmt"

// ActorType tags who (or what) made a decision.
type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorAI     ActorType = "ai"
	ActorSystem ActorType = "system"
)

// ParseActorType maps a lower-case tag to its ActorType.
func ParseActorType(s string) (ActorType, error) {
	switch ActorType(s) {
	case ActorHuman, ActorAI, ActorSystem:
		return ActorType(s), nil
	}
	return "", fmt.Errorf("unknown actor type %q", s)
}

// Actor describes the entity a decision is attributed to. Model is optional
// and only meaningful for AI actors.
type Actor struct {
	ID    string
	Type  ActorType
	Model string
}

// ToMap serializes the actor with its wire keys.
func (a Actor) ToMap() map[string]any {
	return map[string]any{
		"id":    a.ID,
		"type":  string(a.Type),
		"model": a.Model,
	}
}

// ActorFromMap deserializes an actor produced by ToMap.
func ActorFromMap(m map[string]any) (Actor, error) {
	id, _ := m["id"].(string)
	typeTag, _ := m["type"].(string)
	model, _ := m["model"].(string)

	at, err := ParseActorType(typeTag)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: id, Type: at, Model: model}, nil
}
