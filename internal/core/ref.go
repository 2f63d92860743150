package core

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Ref is a reference that clients send either as a bare id or as a populated
// document. Mutation logic only ever looks at ID().
type Ref[T any] struct {
	id    string
	value *T
}

// RefID builds an id-only reference.
func RefID[T any](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Populated builds a reference carrying the full value.
func Populated[T any](id string, v T) Ref[T] {
	return Ref[T]{id: id, value: &v}
}

// ID returns the normalized id, empty when unset.
func (r Ref[T]) ID() string { return r.id }

// Value returns the populated document, if any.
func (r Ref[T]) Value() (T, bool) {
	if r.value == nil {
		var zero T
		return zero, false
	}
	return *r.value, true
}

func (r Ref[T]) IsZero() bool { return r.id == "" && r.value == nil }

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.value != nil {
		return json.Marshal(r.value)
	}
	if r.id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.id)
}

func (r *Ref[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = Ref[T]{}
		return nil
	case b[0] == '"':
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = Ref[T]{id: id}
		return nil
	case b[0] == '{':
		var ids struct {
			ID      string `json:"id"`
			MongoID string `json:"_id"`
		}
		if err := json.Unmarshal(b, &ids); err != nil {
			return err
		}
		id := ids.ID
		if id == "" {
			id = ids.MongoID
		}
		if id == "" {
			return fmt.Errorf("%w: reference object without id", ErrValidation)
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*r = Ref[T]{id: id, value: &v}
		return nil
	default:
		return fmt.Errorf("%w: reference must be a string or an object", ErrValidation)
	}
}
