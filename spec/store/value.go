package store

import (
	"fmt"
	"math"
	"time"
)

// Value is a scalar understood by the engine: nil, int64, float64, string or []byte.
type Value = any

// Normalize converts v into one of the canonical Value representations.
func Normalize(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64, float64, string, []byte:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrTypeMismatch, t)
		}
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrTypeMismatch, t)
		}
		return int64(t), nil
	case float32:
		return float64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("%w: unsupported value of type %T", ErrTypeMismatch, v)
	}
}

// NormalizeAll normalizes every value in vs, returning a new slice.
func NormalizeAll(vs []any) ([]Value, error) {
	out := make([]Value, len(vs))
	for i, v := range vs {
		n, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
