package model

import (
	"bytes"
	"encoding/json"
)

// Optional 是 patch 字段的三态：未设置 / 显式 null / 有值
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some 返回一个有值的 Optional
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null 返回一个显式清空的 Optional
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// HasValue 字段被设置且不是 null
func (o Optional[T]) HasValue() bool {
	return o.Set && !o.Null
}

// IsZero 让 `json:",omitzero"` 跳过未设置的字段
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Null = true
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// ApplyTo 把 patch 写入可空字段：null 清空，未设置保持不变
func (o Optional[T]) ApplyTo(dst **T) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.Value
	*dst = &v
}

// OptionalFromPtr 把 nil 视为 null
func OptionalFromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return Null[T]()
	}
	return Some(*p)
}
