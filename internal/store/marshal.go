package store

import (
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
)

// marshalObject converts an Object to canonical JSON TEXT for storage.
func marshalObject(obj ir.Object) (string, error) {
	if obj == nil {
		obj = ir.Object{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Integers stay exact: large
// values are not routed through float64.
func unmarshalObject(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	obj, err := ir.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}
