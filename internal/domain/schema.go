package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
)

// GustField is the Synoptic variable carrying wind-gust speed.
const GustField = "wind_gust_set_1"

// DateTimeField is the timestamp array shared by every variable in a series.
const DateTimeField = "date_time"

// Kind is the SQL storage class of a schema field.
type Kind string

const (
	KindText    Kind = "TEXT"
	KindInteger Kind = "INTEGER"
	KindReal    Kind = "REAL"
)

// Field is one recognized observation variable.
type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered set of observation fields a cache stores.
type Schema struct {
	fields []Field
	index  map[string]int
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sensorSuffix is the "_set_N" or derived "_set_Nd" tail Synoptic appends to
// a variable name for each sensor.
var sensorSuffix = regexp.MustCompile(`_set_\d+d?$`)

// Column names the cache reserves for the observation key.
var reservedFields = map[string]bool{"timestamp": true, "station_id": true, DateTimeField: true}

// NewSchema validates field names and kinds. Names become column identifiers,
// so only [A-Za-z0-9_] is allowed.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return Schema{}, Validationf("invalid field name %q", f.Name)
		}
		if reservedFields[f.Name] {
			return Schema{}, Validationf("field name %q is reserved", f.Name)
		}
		switch f.Kind {
		case KindText, KindInteger, KindReal:
		default:
			return Schema{}, Validationf("field %s: unknown kind %q", f.Name, f.Kind)
		}
		if _, dup := s.index[f.Name]; dup {
			return Schema{}, Validationf("duplicate field %q", f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// DefaultSchema lists the Synoptic variables recognized out of the box.
func DefaultSchema() Schema {
	s, err := NewSchema(
		Field{"air_temp_set_1", KindReal},
		Field{"relative_humidity_set_1", KindReal},
		Field{"wind_speed_set_1", KindReal},
		Field{"wind_direction_set_1", KindReal},
		Field{GustField, KindReal},
		Field{"peak_wind_speed_set_1", KindReal},
		Field{"peak_wind_direction_set_1", KindReal},
		Field{"pressure_set_1d", KindReal},
		Field{"sea_level_pressure_set_1d", KindReal},
		Field{"altimeter_set_1", KindReal},
		Field{"dew_point_temperature_set_1d", KindReal},
		Field{"precip_accum_set_1", KindReal},
		Field{"solar_radiation_set_1", KindReal},
		Field{"fuel_moisture_set_1", KindReal},
		Field{"visibility_set_1", KindReal},
		Field{"wind_cardinal_direction_set_1d", KindText},
		Field{"weather_condition_set_1d", KindText},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// InferSchema introspects the field set and value types of a sample dataset.
// Integer and real values in the same field widen to REAL; text mixed with
// numbers widens to TEXT. A field with only nulls is REAL. The gust field is
// always present and always REAL, even when the sample only holds whole numbers.
func InferSchema(sample *Dataset) (Schema, error) {
	if sample.IsEmpty() {
		return Schema{}, Validationf("sample dataset has no stations")
	}
	kinds := make(map[string]Kind)
	for _, st := range sample.Stations {
		for name, values := range st.Series.Variables {
			if name == DateTimeField {
				continue
			}
			k, err := inferKind(name, values)
			if err != nil {
				return Schema{}, err
			}
			kinds[name] = widen(kinds[name], k)
		}
	}
	kinds[GustField] = KindReal

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		k := kinds[name]
		if k == "" {
			k = KindReal
		}
		fields = append(fields, Field{Name: name, Kind: k})
	}
	return NewSchema(fields...)
}

func inferKind(name string, values []any) (Kind, error) {
	var k Kind
	for _, v := range values {
		vk, err := kindOf(v)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		k = widen(k, vk)
	}
	return k, nil
}

func kindOf(v any) (Kind, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return KindInteger, nil
		}
		return KindReal, nil
	case float64, float32:
		return KindReal, nil
	case int, int32, int64, bool:
		return KindInteger, nil
	case string:
		return KindText, nil
	default:
		return "", Structuralf("nested value of type %T cannot be stored", v)
	}
}

func widen(a, b Kind) Kind {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	case a == KindText || b == KindText:
		return KindText
	default:
		return KindReal
	}
}

// Variables returns the sorted, distinct Synoptic variable names behind the
// schema fields: "wind_gust_set_1" and "wind_gust_set_2" both yield "wind_gust".
func (s Schema) Variables() []string {
	seen := make(map[string]bool, len(s.fields))
	var out []string
	for _, f := range s.fields {
		v := sensorSuffix.ReplaceAllString(f.Name, "")
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Fields returns a copy of the ordered field list.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Lookup finds a field by name.
func (s Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Coerce converts a decoded value into the Go type stored for field f:
// float64 for REAL, int64 for INTEGER, string for TEXT. Nil passes through.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, err := kindOf(v); err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	switch f.Kind {
	case KindReal:
		return toFloat(f.Name, v)
	case KindInteger:
		return toInt(f.Name, v)
	default:
		return toText(v), nil
	}
}

func toFloat(name string, v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil, Structuralf("field %s: %v", name, err)
		}
		return n, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		n, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, Structuralf("field %s: %q is not a number", name, x)
		}
		return n, nil
	}
	return nil, Structuralf("field %s: unsupported value %T", name, v)
}

func toInt(name string, v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}
	f, err := toFloat(name, v)
	if err != nil {
		return nil, err
	}
	n := f.(float64)
	if n != math.Trunc(n) {
		return nil, Structuralf("field %s: %v is not an integer", name, n)
	}
	return int64(n), nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
