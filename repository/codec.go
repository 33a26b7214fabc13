package repository

import (
	"fmt"
	"reflect"
	"time"

	"go.miragespace.co/sqlrepo/spec/store"
)

// Codec converts between a typed object and the Record stored for it.
type Codec[T any] interface {
	Encode(obj T) (store.Record, error)
	Decode(r store.Record) (T, error)
}

// RecordCodec is the identity codec for repositories of plain Records.
type RecordCodec struct{}

var _ Codec[store.Record] = RecordCodec{}

func (RecordCodec) Encode(obj store.Record) (store.Record, error) {
	out := make(store.Record, len(obj))
	copy(out, obj)
	return out, nil
}

func (RecordCodec) Decode(r store.Record) (store.Record, error) {
	return r, nil
}

const tagName = "db"

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

type structField struct {
	index  []int
	column string
}

// StructCodec maps exported struct fields tagged `db:"column"` onto columns.
// Untagged fields and fields tagged `db:"-"` are not stored. Columns returned
// by the engine with no matching field are ignored on decode.
type StructCodec[T any] struct {
	fields []structField
}

var _ Codec[struct{}] = (*StructCodec[struct{}])(nil)

// NewStructCodec builds a codec for struct type T, verifying every tagged
// column is declared by schema.
func NewStructCodec[T any](schema store.Schema) (*StructCodec[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("StructCodec requires a struct type, got %s", typ)
	}

	seen := make(map[string]bool)
	c := &StructCodec[T]{}
	for _, f := range reflect.VisibleFields(typ) {
		if !f.IsExported() || f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != timeType {
			continue
		}
		col, ok := f.Tag.Lookup(tagName)
		if !ok || col == "-" {
			continue
		}
		if !schema.Has(col) {
			return nil, fmt.Errorf("%w: field %s maps to %q, not a column of %s", store.ErrInvalidColumn, f.Name, col, schema.Table)
		}
		if seen[col] {
			return nil, fmt.Errorf("%w: column %q is mapped twice", store.ErrInvalidColumn, col)
		}
		if !storable(f.Type) {
			return nil, fmt.Errorf("%w: field %s of type %s cannot be stored", store.ErrTypeMismatch, f.Name, f.Type)
		}
		if col == store.IDColumn && !integer(f.Type) {
			return nil, fmt.Errorf("%w: id field %s must be an integer", store.ErrTypeMismatch, f.Name)
		}
		if err := checkEmbedPath(typ, f); err != nil {
			return nil, err
		}
		seen[col] = true
		c.fields = append(c.fields, structField{index: f.Index, column: col})
	}
	if len(c.fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no fields tagged %q", store.ErrInvalidColumn, typ, tagName)
	}
	return c, nil
}

// checkEmbedPath rejects fields promoted through an unexported embedded
// pointer, since decode could not allocate it.
func checkEmbedPath(typ reflect.Type, f reflect.StructField) error {
	for k := 1; k < len(f.Index); k++ {
		e := typ.FieldByIndex(f.Index[:k])
		if e.Type.Kind() == reflect.Pointer && !e.IsExported() {
			return fmt.Errorf("%w: field %s is promoted through unexported embedded pointer %s", store.ErrInvalidColumn, f.Name, e.Name)
		}
	}
	return nil
}

// fieldForSet is FieldByIndex that allocates nil embedded pointers on the way.
func fieldForSet(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

func integer(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func storable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType || t == bytesType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String, reflect.Float32, reflect.Float64:
		return true
	}
	return integer(t)
}

func (c *StructCodec[T]) Encode(obj T) (store.Record, error) {
	v := reflect.ValueOf(&obj).Elem()
	r := make(store.Record, 0, len(c.fields))
	for _, f := range c.fields {
		var val any
		fv, err := v.FieldByIndexErr(f.index)
		switch {
		case err != nil:
			// a nil embedded pointer stores its fields as null
		case fv.Kind() == reflect.Pointer:
			if !fv.IsNil() {
				val = fv.Elem().Interface()
			}
		default:
			val = fv.Interface()
		}
		n, err := store.Normalize(val)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.column, err)
		}
		r = append(r, store.Field{Column: f.column, Value: n})
	}
	return r, nil
}

func (c *StructCodec[T]) Decode(r store.Record) (T, error) {
	var obj T
	v := reflect.ValueOf(&obj).Elem()
	for _, f := range c.fields {
		val, ok := r.Get(f.column)
		if !ok {
			continue
		}
		var fv reflect.Value
		if val == nil {
			// null leaves a nil embedded pointer alone
			var err error
			if fv, err = v.FieldByIndexErr(f.index); err != nil {
				continue
			}
		} else {
			fv = fieldForSet(v, f.index)
		}
		if err := assign(fv, val); err != nil {
			var zero T
			return zero, fmt.Errorf("column %q: %w", f.column, err)
		}
	}
	return obj, nil
}

func assign(dst reflect.Value, val store.Value) error {
	if dst.Kind() == reflect.Pointer {
		if val == nil {
			dst.SetZero()
			return nil
		}
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), val); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if val == nil {
		dst.SetZero()
		return nil
	}

	if dst.Type() == timeType {
		t, err := decodeTime(val)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	if dst.Type() == bytesType {
		switch b := val.(type) {
		case []byte:
			dst.SetBytes(append([]byte(nil), b...))
			return nil
		case string:
			dst.SetBytes([]byte(b))
			return nil
		}
		return mismatch(dst, val)
	}

	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := val.(int64)
		if !ok || dst.OverflowInt(i) {
			return mismatch(dst, val)
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, ok := val.(int64)
		if !ok || i < 0 || dst.OverflowUint(uint64(i)) {
			return mismatch(dst, val)
		}
		dst.SetUint(uint64(i))
	case reflect.Float32, reflect.Float64:
		switch n := val.(type) {
		case float64:
			dst.SetFloat(n)
		case int64:
			dst.SetFloat(float64(n))
		default:
			return mismatch(dst, val)
		}
	case reflect.Bool:
		i, ok := val.(int64)
		if !ok {
			return mismatch(dst, val)
		}
		dst.SetBool(i != 0)
	case reflect.String:
		switch s := val.(type) {
		case string:
			dst.SetString(s)
		case []byte:
			dst.SetString(string(s))
		default:
			return mismatch(dst, val)
		}
	default:
		return mismatch(dst, val)
	}
	return nil
}

func decodeTime(val store.Value) (time.Time, error) {
	switch t := val.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", store.ErrTypeMismatch, t)
	case int64:
		return time.Unix(t, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %T is not a timestamp", store.ErrTypeMismatch, val)
}

func mismatch(dst reflect.Value, val store.Value) error {
	return fmt.Errorf("%w: cannot store %T in %s", store.ErrTypeMismatch, val, dst.Type())
}
