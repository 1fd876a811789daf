package model

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Nullable is an optional activity metric. It keeps a key that was sent as
// null (Present, not Valid) apart from a key that was never sent.
type Nullable[T any] struct {
	Value   T
	Valid   bool
	Present bool
}

// Some returns a present, non-null value.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Value: v, Valid: true, Present: true}
}

// Null returns a present null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Present: true}
}

// IsZero reports whether the key is absent. Used by omitzero and omitempty.
func (n Nullable[T]) IsZero() bool {
	return !n.Present
}

// Interface returns the value, or nil for a null.
func (n Nullable[T]) Interface() any {
	if !n.Valid {
		return nil
	}
	return n.Value
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	*n = Nullable[T]{Present: true}
	if string(b) == "null" {
		return nil
	}
	if err := json.Unmarshal(b, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n Nullable[T]) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !n.Valid {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(n.Value)
}

func (n *Nullable[T]) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*n = Nullable[T]{Present: true}
	if t == bson.TypeNull {
		return nil
	}
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
