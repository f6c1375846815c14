package checkout

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Response bodies from the Shop API are inconsistent across payment providers. The
// helpers below probe a fixed, ordered list of locations instead of guessing inline.

// orderIDPaths are tried in order; the first non-empty id wins.
var orderIDPaths = [][]string{
	{"data", "order", "id"},
	{"order", "id"},
	{"data", "id"},
}

// ExtractOrderID returns the order id from a placement or capture response body.
func ExtractOrderID(body map[string]any) (string, bool) {
	for _, path := range orderIDPaths {
		if id := idString(lookup(body, path...)); id != "" {
			return id, true
		}
	}
	return "", false
}

// SuccessFlag returns the explicit success flag, or nil when the body carries none.
func SuccessFlag(body map[string]any) *bool {
	switch v := lookup(body, "success").(type) {
	case bool:
		return &v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return nil
}

// EvaluateCapture decides whether a capture/confirm response confirms payment: an explicit
// success flag, or an order id while the flag is not explicitly false.
func EvaluateCapture(body map[string]any) (orderID string, ok bool) {
	orderID, hasID := ExtractOrderID(body)
	flag := SuccessFlag(body)
	switch {
	case flag != nil && *flag:
		return orderID, true
	case flag != nil && !*flag:
		return orderID, false
	default:
		return orderID, hasID
	}
}

// ServerMessage returns the human readable reason carried by a response body, preferring a
// structured error description over a plain message.
func ServerMessage(body map[string]any) string {
	for _, path := range [][]string{{"error", "description"}, {"error", "message"}, {"message"}} {
		if s, ok := lookup(body, path...).(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if s, ok := lookup(body, "error").(string); ok {
		return s
	}
	return ""
}

// StringField returns a top-level string or numeric field as a string.
func StringField(body map[string]any, key string) string {
	return idString(lookup(body, key))
}

func lookup(body map[string]any, path ...string) any {
	var cur any = body
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
