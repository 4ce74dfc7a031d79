// Package payload holds the loosely typed JSON documents received from webhook
// senders. Every accessor is fallible: a missing or null field yields the zero
// value, a field of the wrong type yields an error, nothing panics.
package payload

import (
	"errors"
	"fmt"
	"math"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

var ErrNotObject = errors.New("payload is not a JSON object")

type Document map[string]interface{}

// Decode parses body as a JSON object. Integral numbers decode to int64 and
// the rest to float64, matching what the unstructured helpers expect.
func Decode(body []byte) (Document, error) {
	var m map[string]interface{}
	if err := utiljson.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	return Document(m), nil
}

func (d Document) Empty() bool {
	return len(d) == 0
}

func (d Document) lookup(fields ...string) (interface{}, bool, error) {
	if d == nil {
		return nil, false, nil
	}
	v, found, err := unstructured.NestedFieldNoCopy(d, fields...)
	if err != nil || !found || v == nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d Document) String(fields ...string) (string, error) {
	if _, found, err := d.lookup(fields...); !found {
		return "", err
	}
	s, _, err := unstructured.NestedString(d, fields...)
	return s, err
}

func (d Document) Bool(fields ...string) (bool, error) {
	if _, found, err := d.lookup(fields...); !found {
		return false, err
	}
	b, _, err := unstructured.NestedBool(d, fields...)
	return b, err
}

// Int64 also accepts whole float64 values. found is false when the field is
// absent or null.
func (d Document) Int64(fields ...string) (int64, bool, error) {
	v, found, err := d.lookup(fields...)
	if !found {
		return 0, false, err
	}
	switch n := v.(type) {
	case int64:
		return n, true, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false, fmt.Errorf("%v: %v is not an integer", fields, n)
		}
		return int64(n), true, nil
	default:
		return 0, false, fmt.Errorf("%v: %v is of the type %T, expected number", fields, v, v)
	}
}

// Map and Slice return the stored values without copying; callers must not
// mutate them.
func (d Document) Map(fields ...string) (Document, error) {
	v, found, err := d.lookup(fields...)
	if !found {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%v: %v is of the type %T, expected object", fields, v, v)
	}
	return Document(m), nil
}

func (d Document) Slice(fields ...string) ([]interface{}, error) {
	v, found, err := d.lookup(fields...)
	if !found {
		return nil, err
	}
	s, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%v: %v is of the type %T, expected array", fields, v, v)
	}
	return s, nil
}

// First returns the first element of the slice at fields as a Document.
func (d Document) First(fields ...string) (Document, bool, error) {
	items, err := d.Slice(fields...)
	if err != nil || len(items) == 0 {
		return nil, false, err
	}
	m, ok := items[0].(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("%v[0]: %v is of the type %T, expected object", fields, items[0], items[0])
	}
	return Document(m), true, nil
}
