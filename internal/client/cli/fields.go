package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iudanet/taskkeeper/internal/models"
)

// parseFields builds a payload from a JSON object and key=value arguments.
// Arguments override JSON keys. Values true, false and null map to their JSON
// counterparts, everything else stays a string.
func parseFields(args []string, rawJSON string) (models.Payload, error) {
	payload := models.Payload{}

	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &payload); err != nil {
			return nil, fmt.Errorf("invalid --json value: %w", err)
		}
		if payload == nil {
			return nil, fmt.Errorf("invalid --json value: expected an object")
		}
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", arg)
		}
		payload[key] = parseValue(value)
	}

	return payload, nil
}

func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	return s
}

// parseEntityType accepts the known entity types and their plural forms.
func parseEntityType(s string) (models.EntityType, error) {
	switch strings.ToLower(s) {
	case "task", "tasks":
		return models.EntityTask, nil
	case "note", "notes":
		return models.EntityNote, nil
	}
	return "", fmt.Errorf("unknown entity type %q: use task or note", s)
}
