package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
)

// field binds one JSON key of a request body to its destination.
type field struct {
	key string
	set func(raw json.RawMessage) error
}

var nullLiteral = []byte("null")

// decodeObject decodes data as a JSON object and feeds each listed key that
// is present to its setter. Keys present with a null value are not set and
// are returned in list order. Unlisted keys are ignored. Type errors carry
// the offending key in Field.
func decodeObject(data []byte, fields []field) ([]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var nulls []string
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), nullLiteral) {
			nulls = append(nulls, f.key)
			continue
		}
		if err := f.set(v); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				typeErr.Field = f.key
			}
			return nil, err
		}
	}
	return nulls, nil
}

func valueOf[T any](dst **T) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// wholeNumber accepts any JSON number without a fractional part, so 30 and
// 30.0 both decode to 30. Strings and fractional numbers are type errors.
func wholeNumber(dst **int) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		raw = bytes.TrimSpace(raw)
		fail := &json.UnmarshalTypeError{Value: jsonKind(raw), Type: reflect.TypeOf(0)}

		var n json.Number
		if len(raw) == 0 || raw[0] == '"' || json.Unmarshal(raw, &n) != nil {
			return fail
		}
		if i, err := n.Int64(); err == nil {
			v := int(i)
			*dst = &v
			return nil
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return fail
		}
		v := int(f)
		*dst = &v
		return nil
	}
}

// jsonKind describes raw the way encoding/json does in type errors.
func jsonKind(raw []byte) string {
	if len(raw) == 0 {
		return "value"
	}
	switch raw[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "bool"
	}
	return "number " + string(raw)
}

func (d *Draft) UnmarshalJSON(data []byte) error {
	*d = Draft{}
	nulls, err := decodeObject(data, []field{
		{"id", valueOf(&d.ID)},
		{"name", valueOf(&d.Name)},
		{"city", valueOf(&d.City)},
		{"age", wholeNumber(&d.Age)},
		{"gender", valueOf(&d.Gender)},
		{"height", valueOf(&d.Height)},
		{"weight", valueOf(&d.Weight)},
	})
	d.nulls = nulls
	return err
}

func (u *Update) UnmarshalJSON(data []byte) error {
	*u = Update{}
	nulls, err := decodeObject(data, []field{
		{"name", valueOf(&u.Name)},
		{"city", valueOf(&u.City)},
		{"age", wholeNumber(&u.Age)},
		{"gender", valueOf(&u.Gender)},
		{"height", valueOf(&u.Height)},
		{"weight", valueOf(&u.Weight)},
	})
	u.nulls = nulls
	return err
}
