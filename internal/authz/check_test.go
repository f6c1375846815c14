package authz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	allow bool
	err   error
	seen  Tuple
}

func (f *fakeClient) Check(ctx context.Context, user, object, relation string) (bool, error) {
	f.seen = Tuple{User: user, Relation: relation, Object: object}
	return f.allow, f.err
}

func TestCanAllowed(t *testing.T) {
	c := &fakeClient{allow: true}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Principal", "user:alice")

	allowed, err := Can(context.Background(), c, r, StorefrontObject("main"), RelationCanCheckout)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, Tuple{User: "user:alice", Relation: "can_checkout", Object: "storefront:main"}, c.seen)
}

func TestCanDenied(t *testing.T) {
	c := &fakeClient{allow: false}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Principal", "user:charlie")

	allowed, err := Can(context.Background(), c, r, StorefrontObject("main"), RelationCanCheckout)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPrincipalPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "user:anonymous", PrincipalFromRequest(r))

	r.Header.Set("X-User", "user:x")
	assert.Equal(t, "user:x", PrincipalFromRequest(r))

	r.Header.Set("X-Principal", "user:p")
	assert.Equal(t, "user:p", PrincipalFromRequest(r))

	r.AddCookie(&http.Cookie{Name: "act_as", Value: "user:cookie"})
	assert.Equal(t, "user:cookie", PrincipalFromRequest(r))
}

func TestRequireMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	objectRel := func(*http.Request) (string, string) { return StorefrontObject(""), RelationCanCheckout }

	cases := []struct {
		name   string
		client *fakeClient
		want   int
	}{
		{"allowed", &fakeClient{allow: true}, http.StatusNoContent},
		{"denied", &fakeClient{allow: false}, http.StatusForbidden},
		{"error fails closed", &fakeClient{allow: true, err: errors.New("down")}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Require(tc.client, objectRel)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, "storefront:default", tc.client.seen.Object)
		})
	}
}

func TestOpenFGAClientCheckAndWrite(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if r.URL.Path == "/stores/s1/check" {
			key := body["tuple_key"].(map[string]any)
			_ = json.NewEncoder(w).Encode(map[string]bool{"allowed": key["user"] == "user:alice"})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewOpenFGAClient(srv.URL, "s1")
	ok, err := c.Check(context.Background(), "user:alice", "storefront:main", RelationCanCheckout)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Check(context.Background(), "user:mallory", "storefront:main", RelationCanCheckout)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Write(context.Background(), []Tuple{{User: "user:bob", Relation: RelationCanCheckout, Object: "storefront:main"}}))
	assert.Equal(t, []string{"/stores/s1/check", "/stores/s1/check", "/stores/s1/write"}, paths)
}
