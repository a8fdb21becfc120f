package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	// FieldID is the payload key carrying the entity identifier.
	FieldID = "id"
	// FieldUpdatedAt is the payload key carrying the version timestamp the local edit was based on.
	FieldUpdatedAt = "updated_at"

	// TimestampLayout is the wire format of entity timestamps.
	TimestampLayout = time.RFC3339Nano

	// LocalIDPrefix marks identifiers assigned on the client to entities the server has not seen yet.
	LocalIDPrefix = "local-"
)

// Payload is the JSON object describing an entity (or just its id for deletes).
type Payload map[string]any

// EntityID returns the payload's id as a string. JSON numbers are formatted without
// a fractional part, so a server id 7 and "7" address the same entity.
func (p Payload) EntityID() string {
	if p == nil {
		return ""
	}
	switch v := p[FieldID].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// UpdatedAt parses the payload's updated_at field.
// The second return value is false when the field is missing or malformed.
func (p Payload) UpdatedAt() (time.Time, bool) {
	return ParseTimestamp(p[FieldUpdatedAt])
}

// Merge overlays partial onto p in place.
func (p Payload) Merge(partial Payload) {
	for k, v := range partial {
		p[k] = v
	}
}

// Clone возвращает копию payload (вложенные значения копируются через JSON)
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		// не JSON-сериализуемые значения копируем поверхностно
		shallow := make(Payload, len(p))
		for k, v := range p {
			shallow[k] = v
		}
		return shallow
	}
	var clone Payload
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil
	}
	return clone
}

// IsLocalID reports whether id was assigned on the client.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// ParseTimestamp accepts RFC 3339 strings and time.Time values.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		parsed, err := time.Parse(TimestampLayout, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
