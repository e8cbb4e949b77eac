package datetime

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const (
	// maxEpochMillis bounds representable instants to ±100,000,000 days around the epoch.
	maxEpochMillis = 8.64e15
	// maxUnwrap limits nested wrapper conversions.
	maxUnwrap = 8
)

// Input is the closed set of timestamp shapes accepted by Normalize.
type Input interface {
	isInput()
}

// Empty represents an absent value (nil or the empty string).
type Empty struct{}

// Native wraps an already-decoded time value.
type Native struct {
	Time time.Time
}

// EpochMillis is a numeric epoch expressed in milliseconds.
type EpochMillis struct {
	Millis float64
}

// Text is a date string that still needs parsing.
type Text struct {
	Value string
}

// Converter is implemented by backend timestamp wrappers able to convert
// themselves into another accepted shape.
type Converter interface {
	AsTime() Input
}

// Wrapper holds a backend timestamp wrapper; its conversion is normalized recursively.
type Wrapper struct {
	Converter Converter
}

// Seconds is a plain object exposing epoch seconds (and optional nanoseconds).
type Seconds struct {
	Seconds float64
	Nanos   int64
}

// Unrecognized is any shape outside the accepted set.
type Unrecognized struct{}

func (Empty) isInput()        {}
func (Native) isInput()       {}
func (EpochMillis) isInput()  {}
func (Text) isInput()         {}
func (Wrapper) isInput()      {}
func (Seconds) isInput()      {}
func (Unrecognized) isInput() {}

var textLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	"02/01/2006",
}

// Classify maps a raw decoded value onto the accepted input shapes.
func Classify(v any) Input {
	switch value := v.(type) {
	case nil:
		return Empty{}
	case Input:
		return value
	case Converter:
		return Wrapper{Converter: value}
	case time.Time:
		return Native{Time: value}
	case *time.Time:
		if value == nil {
			return Empty{}
		}
		return Native{Time: *value}
	case string:
		if value == "" {
			return Empty{}
		}
		return Text{Value: value}
	case map[string]any:
		return classifySeconds(value)
	default:
		if f, ok := number(value); ok {
			return EpochMillis{Millis: f}
		}
		return Unrecognized{}
	}
}

// classifySeconds accepts {seconds, nanoseconds} as well as the
// underscore-prefixed form produced by some admin SDK serializers.
func classifySeconds(m map[string]any) Input {
	raw, ok := m["seconds"]
	if !ok {
		raw, ok = m["_seconds"]
	}
	if !ok {
		return Unrecognized{}
	}
	secs, ok := number(raw)
	if !ok {
		return Unrecognized{}
	}
	out := Seconds{Seconds: secs}
	for _, key := range []string{"nanoseconds", "_nanoseconds"} {
		if n, ok := number(m[key]); ok {
			out.Nanos = int64(n)
			break
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Normalize converts any accepted input into a canonical time, or nil when
// the value is absent, malformed or unrecognized. It never panics.
func Normalize(in Input) *time.Time {
	return normalize(in, 0)
}

func normalize(in Input, depth int) *time.Time {
	switch v := in.(type) {
	case nil, Empty, Unrecognized:
		return nil
	case Native:
		return valid(v.Time)
	case EpochMillis:
		return fromMillis(v.Millis)
	case Text:
		return parseText(v.Value)
	case Wrapper:
		if v.Converter == nil || depth >= maxUnwrap {
			return nil
		}
		return normalize(v.Converter.AsTime(), depth+1)
	case Seconds:
		if math.IsNaN(v.Seconds) || math.IsInf(v.Seconds, 0) {
			return nil
		}
		return fromMillis(v.Seconds*1000 + float64(v.Nanos)/1e6)
	default:
		return nil
	}
}

// NormalizeAny is Normalize(Classify(v)).
func NormalizeAny(v any) *time.Time {
	return Normalize(Classify(v))
}

// ShortDisplay renders DD/MM/YYYY, or an empty string when t is nil.
func ShortDisplay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006")
}

// ISOInput renders YYYY-MM-DD for date-picker fields, or an empty string when t is nil.
func ISOInput(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func valid(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	ms := float64(t.Unix())*1000 + float64(t.Nanosecond())/1e6
	if math.Abs(ms) > maxEpochMillis {
		return nil
	}
	return &t
}

func fromMillis(ms float64) *time.Time {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return nil
	}
	whole := math.Trunc(ms)
	nanos := int64(math.Round((ms - whole) * 1e6))
	t := time.UnixMilli(int64(whole)).Add(time.Duration(nanos)).UTC()
	return &t
}

func parseText(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return valid(t)
		}
	}
	return nil
}
