package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeSendsBearerTokenAndDecodesProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Profile{ID: 100, Name: "alice", Language: "en"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	p, err := c.Me(t.Context(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, Profile{ID: 100, Name: "alice", Language: "en"}, p)
}

func TestMeFailureSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid token"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.Me(t.Context(), "bad")
	assert.Error(t, err)
}

func TestChartAndRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart/42":
			_ = json.NewEncoder(w).Encode(Chart{ID: 42, Name: "X"})
		case "/record/7":
			_ = json.NewEncoder(w).Encode(Record{ID: 7, Player: 100, Score: 900000, Accuracy: 0.99, FullCombo: true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)

	chart, err := c.Chart(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, Chart{ID: 42, Name: "X"}, chart)

	rec, err := c.Record(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, Record{ID: 7, Player: 100, Score: 900000, Accuracy: 0.99, FullCombo: true}, rec)
}
