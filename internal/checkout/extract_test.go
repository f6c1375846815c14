package checkout

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	require.NoError(t, dec.Decode(&body))
	return body
}

func TestExtractOrderIDPriority(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"data.order.id wins", `{"data":{"order":{"id":42},"id":7},"order":{"id":9}}`, "42", true},
		{"order.id before data.id", `{"order":{"id":"ord_9"},"data":{"id":7}}`, "ord_9", true},
		{"data.id last", `{"data":{"id":7}}`, "7", true},
		{"empty string skipped", `{"data":{"order":{"id":""}},"order":{"id":"x1"}}`, "x1", true},
		{"absent", `{"success":true,"message":"ok"}`, "", false},
		{"large numeric id keeps precision", `{"order":{"id":9007199254740993}}`, "9007199254740993", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractOrderID(decodeBody(t, tc.body))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateCapture(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantID  string
		success bool
	}{
		{"explicit success with order", `{"success":true,"data":{"order":{"id":101}}}`, "101", true},
		{"explicit success without order", `{"success":true}`, "", true},
		{"order id and no flag", `{"order":{"id":5}}`, "5", true},
		{"explicit failure overrides order id", `{"success":false,"data":{"order":{"id":5}}}`, "5", false},
		{"nothing", `{"message":"pending"}`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := EvaluateCapture(decodeBody(t, tc.body))
			assert.Equal(t, tc.success, ok)
			assert.Equal(t, tc.wantID, id)
		})
	}
}

func TestServerMessagePrefersErrorDescription(t *testing.T) {
	body := decodeBody(t, `{"message":"Something went wrong","error":{"description":"Card declined"}}`)
	assert.Equal(t, "Card declined", ServerMessage(body))

	body = decodeBody(t, `{"message":"Session expired"}`)
	assert.Equal(t, "Session expired", ServerMessage(body))

	assert.Empty(t, ServerMessage(map[string]any{}))
}
