package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// maxBodySize ограничивает размер тела запроса
const maxBodySize = 1 << 20

// errStaleUpdate сигнализирует, что клиент правил устаревшую версию
var errStaleUpdate = errors.New("entity was modified on the server")

// serverOwnedFields are never taken from a request body
var serverOwnedFields = []string{"id", "created_at", "updated_at"}

// patch is a decoded create or update body with server-owned fields removed.
type patch struct {
	based  *time.Time
	fields map[string]json.RawMessage
}

func decodePatch(r io.Reader) (*patch, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r, maxBodySize)).Decode(&fields); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if fields == nil {
		return nil, errors.New("invalid JSON body: expected an object")
	}

	p := &patch{fields: fields}
	if raw, ok := fields["updated_at"]; ok && string(raw) != "null" {
		var based time.Time
		if err := json.Unmarshal(raw, &based); err != nil {
			return nil, fmt.Errorf("invalid updated_at: %w", err)
		}
		p.based = &based
	}
	for _, name := range serverOwnedFields {
		delete(fields, name)
	}

	return p, nil
}

// checkFresh rejects a patch built on a version older than the stored one.
// A patch without updated_at overwrites unconditionally.
func (p *patch) checkFresh(stored time.Time) error {
	if p.based != nil && stored.After(*p.based) {
		return errStaleUpdate
	}
	return nil
}

// applyTo merges present fields onto dst; absent fields keep their stored values.
func (p *patch) applyTo(dst any) error {
	data, err := json.Marshal(p.fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid field value: %w", err)
	}
	return nil
}
