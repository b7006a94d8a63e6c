package spotify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/earworm-audio/earworm/pkg/provider/player"
	"github.com/earworm-audio/earworm/pkg/provider/player/spotify"
)

// startAPI launches a fake Spotify API. The mux routes are filled per test.
func startAPI(t *testing.T, mux *http.ServeMux) *spotify.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := spotify.New("test-token", spotify.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestDevices(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{
				{"id": "d1", "name": "Kitchen", "type": "Speaker"},
				{"id": "d2", "name": "Desk", "type": "Computer"},
			},
		})
	})

	c := startAPI(t, mux)
	devices, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	if devices[0].ID != "d1" || devices[0].Name != "Kitchen" || devices[0].Type != "Speaker" {
		t.Errorf("devices[0] = %+v", devices[0])
	}
}

func TestFindTrack(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Paranoid Android" {
			t.Errorf("search q = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("search limit = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{
				"items": []map[string]any{{"id": "t42", "name": "Paranoid Android"}},
			},
		})
	})

	c := startAPI(t, mux)
	track, err := c.FindTrack(context.Background(), "Paranoid Android")
	if err != nil {
		t.Fatalf("find track: %v", err)
	}
	if track == nil || track.ID != "t42" {
		t.Fatalf("track = %+v, want id t42", track)
	}
}

func TestFindTrackNoResult(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{"items": []map[string]any{}},
		})
	})

	c := startAPI(t, mux)
	track, err := c.FindTrack(context.Background(), "Unreleased Demo")
	if err != nil {
		t.Fatalf("find track: %v", err)
	}
	if track != nil {
		t.Fatalf("track = %+v, want nil for no result", track)
	}
}

func TestStartPlaybackTargetsSelectedDevice(t *testing.T) {
	t.Parallel()
	var gotDevice string
	var gotURIs []string

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
		gotDevice = r.URL.Query().Get("device_id")
		var body struct {
			URIs []string `json:"uris"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotURIs = body.URIs
		w.WriteHeader(http.StatusNoContent)
	})

	c := startAPI(t, mux)
	c.SetDevice("d1")
	err := c.StartPlayback(context.Background(), &player.Track{ID: "t42", Name: "Paranoid Android"})
	if err != nil {
		t.Fatalf("start playback: %v", err)
	}
	if gotDevice != "d1" {
		t.Errorf("device_id = %q, want d1", gotDevice)
	}
	if len(gotURIs) != 1 || gotURIs[0] != "spotify:track:t42" {
		t.Errorf("uris = %v, want [spotify:track:t42]", gotURIs)
	}
}

func TestVerifyPlaying(t *testing.T) {
	t.Parallel()
	playing := map[string]any{
		"is_playing": true,
		"item":       map[string]any{"id": "t42", "name": "Paranoid Android"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(playing)
	})

	c := startAPI(t, mux)
	ok, err := c.VerifyPlaying(context.Background(), &player.Track{ID: "t42"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("verify = false, want true for the matching track")
	}

	// A different track playing is not a verification.
	ok, err = c.VerifyPlaying(context.Background(), &player.Track{ID: "other"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("verify = true for a different track")
	}
}

func TestVerifyPlayingNothingActive(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := startAPI(t, mux)
	ok, err := c.VerifyPlaying(context.Background(), &player.Track{ID: "t42"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("verify = true with no active playback")
	}
}

func TestExpiredTokenIsAuthError(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"status": 401, "message": "The access token expired"}}`, http.StatusUnauthorized)
	})

	c := startAPI(t, mux)
	_, err := c.Devices(context.Background())
	if !player.IsAuthError(err) {
		t.Fatalf("error = %v, want AuthError", err)
	}
}

func TestServerErrorIsNotAuthError(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	c := startAPI(t, mux)
	_, err := c.FindTrack(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error for 502, got nil")
	}
	if player.IsAuthError(err) {
		t.Fatalf("502 classified as auth error: %v", err)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := spotify.New(""); err == nil {
		t.Fatal("expected error for empty token, got nil")
	}
}
