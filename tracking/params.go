package tracking

import (
	"encoding/json"
	"fmt"
	"strconv"

	"utmtracker/api/models"
)

// paramString renders a parameter as a string. It reports false when the
// parameter is absent or null.
func paramString(params models.Params, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return fmt.Sprint(val), true
	}
}

// optional returns a pointer to the parameter's string value, or nil when the
// parameter is absent so the field is left out of the stored record.
func optional(params models.Params, key string) *string {
	s, ok := paramString(params, key)
	if !ok {
		return nil
	}
	return &s
}

// present reports whether a parameter carries a non-empty value. Zero numbers
// and false count as empty.
func present(params models.Params, key string) bool {
	switch val := params[key].(type) {
	case nil:
		return false
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	case float64:
		return val != 0
	case bool:
		return val
	default:
		return true
	}
}
