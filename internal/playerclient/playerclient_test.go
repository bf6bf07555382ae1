package playerclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/giorgiobrullo/cider-sync/internal/cidererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowPlayingInfoDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/playback/now-playing", r.URL.Path)
		_ = json.NewEncoder(w).Encode(NowPlaying{SongID: "1", Name: "Song", IsPlaying: true, PositionMs: 5000})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	np, err := c.NowPlayingInfo(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Song", np.Name)
	assert.True(t, np.IsPlaying)
}

func TestUnauthorizedMapsToKindUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.IsPlaying(t.Context())
	require.Error(t, err)
	assert.True(t, cidererr.Is(err, cidererr.KindUnauthorized))
}

func TestForbiddenMapsToKindUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.Play(t.Context())
	require.Error(t, err)
	assert.True(t, cidererr.Is(err, cidererr.KindUnauthorized))
}

func TestOtherStatusMapsToKindPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.Pause(t.Context())
	require.Error(t, err)
	assert.True(t, cidererr.Is(err, cidererr.KindPlayer))
}

func TestApiTokenHeaderSentWhenConfigured(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("apitoken")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token")
	require.NoError(t, c.Stop(t.Context()))
	assert.Equal(t, "secret-token", gotToken)
}

func TestSeekSendsPositionAsFloat(t *testing.T) {
	var got map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	require.NoError(t, c.Seek(t.Context(), 42.5))
	assert.Equal(t, 42.5, got["position"])
}
