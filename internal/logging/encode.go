package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"sort"
	"time"
)

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date part of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

const datetimeFormat = "2006-01-02 15:04:05.999999"

// typed wraps values JSON has no type for.
func typed(value any, kind string) map[string]any {
	return map[string]any{"value": value, "type": kind}
}

// encodable converts v into something encoding/json can marshal, tagging
// sets, dates, times and decimals with their type.
func encodable(v any) any {
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case slog.Value:
		return encodable(t.Resolve().Any())
	case time.Time:
		return typed(t.Format(datetimeFormat), "datetime")
	case Date:
		return typed(t.String(), "date")
	case *big.Float:
		if t == nil {
			return nil
		}
		return typed(t.Text('f', -1), "Decimal")
	case *big.Rat:
		if t == nil {
			return nil
		}
		if t.IsInt() {
			return typed(t.Num().String(), "Decimal")
		}
		return typed(t.FloatString(10), "Decimal")
	case time.Duration:
		return t.String()
	case error:
		return t.Error()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = encodable(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = encodable(item)
		}
		return out
	case json.Marshaler, fmt.Stringer:
		return t
	}

	if set, ok := setValues(v); ok {
		return typed(set, "set")
	}
	return v
}

// setValues returns the sorted members of a map[T]struct{}.
func setValues(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Elem().Size() != 0 {
		return nil, false
	}

	members := make([]any, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		members = append(members, encodable(k.Interface()))
	}
	sort.Slice(members, func(i, j int) bool {
		return fmt.Sprint(members[i]) < fmt.Sprint(members[j])
	})
	return members, true
}

// field is one key of an ordered JSON object.
type field struct {
	key   string
	value any
}

// object is a JSON object that keeps insertion order. Setting an existing
// key replaces its value in place.
type object []field

func (o *object) set(key string, value any) {
	for i := range *o {
		if (*o)[i].key == key {
			(*o)[i].value = value
			return
		}
	}
	*o = append(*o, field{key: key, value: value})
}

func (o object) get(key string) (any, bool) {
	for _, f := range o {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the fields in order. Values that cannot be encoded
// are written as their fmt representation.
func (o object) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, f := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')

		value, err := json.Marshal(encodable(f.value))
		if err != nil {
			value, _ = json.Marshal(fmt.Sprintf("%v", f.value))
		}
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}
