package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"time"

	"github.com/noah-isme/dicampus-admin/pkg/datetime"
)

// Record is a document mirrored from the collection store.
type Record interface {
	RecordID() string
}

// Optional distinguishes an absent value from a present one, including an
// explicit null.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON marks the optional present whenever its key appears.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON renders the held value, or null when absent.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

var dateType = reflect.TypeOf(Date{})

// Date accepts any date representation clients send (ISO date, RFC3339,
// DD/MM/YYYY, epoch millis) and holds nil for null or empty input.
type Date struct {
	Time *time.Time
}

// DateOf wraps t.
func DateOf(t time.Time) Date {
	return Date{Time: &t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	d.Time = datetime.NormalizeAny(raw)
	if d.Time == nil && raw != nil && raw != "" {
		return &json.UnmarshalTypeError{Value: string(data), Type: dateType}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.Time == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time)
}
