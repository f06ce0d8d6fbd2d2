package chain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/ledgerd/internal/ir"
)

// DecodeArgs decodes action arguments into out, a pointer to a struct whose
// fields carry mapstructure tags. Fields tagged ",omitempty" are optional
// and may be absent or null; every other field is required. Unknown keys
// and type mismatches are rejected with CodeInvalidArguments.
func DecodeArgs(module string, args ir.Object, out any) error {
	if missing := missingArgs(args, out); len(missing) > 0 {
		return Reject(module, CodeInvalidArguments, "missing argument(s): %s", strings.Join(missing, ", "))
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return fmt.Errorf("DecodeArgs: %w", err)
	}

	raw, _ := ir.ToGo(args).(map[string]any)
	if raw == nil {
		raw = map[string]any{}
	}
	if err := dec.Decode(raw); err != nil {
		return Reject(module, CodeInvalidArguments, "%v", err)
	}
	return nil
}

// missingArgs lists required tagged fields with no non-null argument.
func missingArgs(args ir.Object, out any) []string {
	t := reflect.TypeOf(out)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var missing []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if strings.Contains(opts, "omitempty") {
			continue
		}
		v, ok := args[name]
		if _, isNull := v.(ir.Null); !ok || isNull {
			missing = append(missing, name)
		}
	}
	return missing
}
