package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedBody = `[
	{"id":461424,"datetime":"2024-01-17 01:00:00 +01:00","name":"16 januari 20.29, Stöld/inbrott, Nacka","summary":"Inbrott.","type":"Stöld/inbrott","location":{"name":"Nacka","gps":"59.31,18.16"}},
	{"id":461425,"datetime":"2024-01-17 01:10:00 +01:00","name":"17 januari 00.55, Rattfylleri, Solna","summary":"Förare stoppad.","type":"Rattfylleri","location":{"name":"Solna","gps":"59.36,17.99"}}
]`

func TestClient_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, slog.Default())
	events, err := c.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(461424), events[0].ID)
	assert.Equal(t, "Nacka", events[0].Location.Name)
	assert.JSONEq(t,
		`{"id":461424,"datetime":"2024-01-17 01:00:00 +01:00","name":"16 januari 20.29, Stöld/inbrott, Nacka","summary":"Inbrott.","type":"Stöld/inbrott","location":{"name":"Nacka","gps":"59.31,18.16"}}`,
		string(events[0].Payload))

	// The feed rejects the default Go user agent.
	assert.True(t, strings.HasPrefix(gotUA, "Mozilla/5.0"), "unexpected user agent %q", gotUA)
}

func TestClient_Fetch_DropsNonObjectEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"id":1,"datetime":"2024-01-17 01:00:00 +01:00","name":"n","type":"t","location":{"name":"l"}},"garbage"]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, slog.Default())
	events, err := c.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].ID)
}

func TestClient_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}},
		{"not a json array", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"error":"maintenance"}`))
		}},
		{"invalid json", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[{"id":`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, 5*time.Second, slog.Default())
			_, err := c.Fetch(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond, slog.Default())
	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}
