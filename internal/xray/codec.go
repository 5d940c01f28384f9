package xray

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StringOrObject holds either a bare string or an object of type T.
// The object variant wins when both are set.
type StringOrObject[T any] struct {
	String string
	Object *T
}

// NewString returns the string variant.
func NewString[T any](s string) StringOrObject[T] {
	return StringOrObject[T]{String: s}
}

// NewObject returns the object variant.
func NewObject[T any](obj T) StringOrObject[T] {
	return StringOrObject[T]{Object: &obj}
}

// IsObject reports whether the object variant is held.
func (v StringOrObject[T]) IsObject() bool {
	return v.Object != nil
}

func (v StringOrObject[T]) MarshalJSON() ([]byte, error) {
	if v.Object != nil {
		return json.Marshal(v.Object)
	}
	return json.Marshal(v.String)
}

func (v *StringOrObject[T]) UnmarshalJSON(data []byte) error {
	var s string
	if isJSONString(data) && json.Unmarshal(data, &s) == nil {
		*v = StringOrObject[T]{String: s}
		return nil
	}

	if isJSONObject(data) {
		var obj T
		if err := json.Unmarshal(data, &obj); err == nil {
			*v = StringOrObject[T]{Object: &obj}
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrPolymorphicValueMismatch, truncate(data))
}

// StringOrStringList holds either a single string or a list of strings.
type StringOrStringList struct {
	Single string
	List   []string
	isList bool
}

// Single returns the single-string variant.
func Single(s string) StringOrStringList {
	return StringOrStringList{Single: s}
}

// List returns the list variant.
func List(items ...string) StringOrStringList {
	if items == nil {
		items = []string{}
	}
	return StringOrStringList{List: items, isList: true}
}

// IsList reports whether the list variant is held.
func (v StringOrStringList) IsList() bool {
	return v.isList
}

// Values returns the held addresses regardless of variant.
func (v StringOrStringList) Values() []string {
	if v.isList {
		return v.List
	}
	return []string{v.Single}
}

func (v StringOrStringList) MarshalJSON() ([]byte, error) {
	if v.isList {
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Single)
}

func (v *StringOrStringList) UnmarshalJSON(data []byte) error {
	var s string
	if isJSONString(data) && json.Unmarshal(data, &s) == nil {
		*v = Single(s)
		return nil
	}

	var list []string
	if isJSONArray(data) && json.Unmarshal(data, &list) == nil {
		*v = List(list...)
		return nil
	}

	return fmt.Errorf("%w: %s", ErrPolymorphicValueMismatch, truncate(data))
}

// encoding/json happily decodes null into strings and structs, so the
// shape is checked on the raw bytes first.
func firstByte(data []byte) byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isJSONString(data []byte) bool { return firstByte(data) == '"' }
func isJSONObject(data []byte) bool { return firstByte(data) == '{' }
func isJSONArray(data []byte) bool  { return firstByte(data) == '[' }

func truncate(data []byte) string {
	const limit = 64
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
