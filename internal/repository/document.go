package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/dicampus-admin/pkg/datetime"
)

// Field names stamped by the sync layer and understood by every store.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Fields is the field map of a stored document.
type Fields map[string]any

// Document is one record of a collection as delivered in a snapshot. The
// store-assigned id is carried separately from the fields.
type Document struct {
	ID     string
	Fields Fields
}

// SnapshotFunc receives the full current contents of a collection.
type SnapshotFunc func([]Document)

// ErrorFunc receives a terminal subscription error. No snapshot follows it.
type ErrorFunc func(error)

// Subscription is a live collection subscription.
type Subscription interface {
	Cancel()
}

type subscriptionFunc func()

func (f subscriptionFunc) Cancel() { f() }

// encodeFields renders fields as a JSON object.
func encodeFields(fields Fields) ([]byte, error) {
	if fields == nil {
		fields = Fields{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode document fields: %w", err)
	}
	return payload, nil
}

// decodeFields parses a stored JSON object keeping numbers as json.Number.
func decodeFields(raw []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	fields := Fields{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document fields: %w", err)
	}
	return fields, nil
}

// normalizeFields gives in-process writes the same value shapes a
// JSON-backed store would deliver.
func normalizeFields(fields Fields) (Fields, error) {
	raw, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	return decodeFields(raw)
}

func withoutID(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if k == FieldID {
			continue
		}
		out[k] = v
	}
	return out
}

func cloneFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return map[string]any(cloneFields(value))
	case []any:
		out := make([]any, len(value))
		for i := range value {
			out[i] = cloneValue(value[i])
		}
		return out
	default:
		return v
	}
}

// sortByCreation orders documents by their createdAt field, then id.
// Documents without a readable createdAt sort last.
func sortByCreation(docs []Document) {
	created := func(d Document) *time.Time { return datetime.NormalizeAny(d.Fields[FieldCreatedAt]) }
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := created(docs[i]), created(docs[j])
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return docs[i].ID < docs[j].ID
	})
}
