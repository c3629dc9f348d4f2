package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/friendmap/backend/internal/models"
)

func seededUsers() *inMemoryUserStore {
	return newInMemoryUserStore(
		models.User{ID: alice.ID, Email: "alice@example.com", Username: alice.Username, Name: alice.Name},
		models.User{ID: bob.ID, Email: "bob@example.com", Username: bob.Username, Name: bob.Name},
		models.User{ID: charlie.ID, Email: "charlie@example.com", Username: charlie.Username, Name: charlie.Name},
	)
}

func TestUserHandlerSearchExcludesCaller(t *testing.T) {
	handler := UserHandler{Users: seededUsers()}
	rec := httptest.NewRecorder()

	handler.Search(rec, newAuthedRequest(http.MethodGet, "/api/v1/users?search=a", "", alice.ID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Users []models.UserSummary `json:"users"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].ID != charlie.ID {
		t.Fatalf("expected only charlie, got %+v", resp.Users)
	}
}

func TestUserHandlerMe(t *testing.T) {
	handler := UserHandler{Users: seededUsers()}
	rec := httptest.NewRecorder()

	handler.Me(rec, newAuthedRequest(http.MethodGet, "/api/v1/users/me", "", bob.ID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var resp accountResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Email != "bob@example.com" {
		t.Fatalf("expected own email, got %+v", resp)
	}
}

func TestUserHandlerRequiresAuthentication(t *testing.T) {
	handler := UserHandler{Users: seededUsers()}
	rec := httptest.NewRecorder()

	handler.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestUserHandlerLookups(t *testing.T) {
	mux := http.NewServeMux()
	handler := UserHandler{Users: seededUsers()}
	mux.HandleFunc("GET /api/v1/users/username/{username}", handler.ByUsername)
	mux.HandleFunc("GET /api/v1/users/{id}", handler.ByID)

	cases := []struct {
		path   string
		status int
		wantID string
	}{
		{path: "/api/v1/users/" + bob.ID, status: http.StatusOK, wantID: bob.ID},
		{path: "/api/v1/users/not-a-uuid", status: http.StatusNotFound},
		{path: "/api/v1/users/44444444-4444-4444-4444-444444444444", status: http.StatusNotFound},
		{path: "/api/v1/users/username/charlie", status: http.StatusOK, wantID: charlie.ID},
		{path: "/api/v1/users/username/nobody", status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, newAuthedRequest(http.MethodGet, tc.path, "", alice.ID))

			if rec.Code != tc.status {
				t.Fatalf("expected status %d got %d", tc.status, rec.Code)
			}
			if tc.wantID == "" {
				return
			}
			var summary models.UserSummary
			if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if summary.ID != tc.wantID {
				t.Fatalf("expected %s got %s", tc.wantID, summary.ID)
			}
			if strings.Contains(rec.Body.String(), "email") {
				t.Fatal("public lookup must not expose email")
			}
		})
	}
}

type recordingAvatarStore struct {
	key         string
	contentType string
	body        string
	err         error
}

func (s *recordingAvatarStore) PutAvatar(_ context.Context, userID, name, contentType string, body io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.key = userID + "/" + name
	s.contentType = contentType
	s.body = string(data)
	return "https://cdn.example.com/avatars/" + s.key, nil
}

func TestUserHandlerUploadAvatar(t *testing.T) {
	users := seededUsers()
	avatars := &recordingAvatarStore{}
	handler := UserHandler{Users: users, Avatars: avatars, MaxAvatarBytes: 64}

	req := newAuthedRequest(http.MethodPut, "/api/v1/users/me/avatar", "fake-png", alice.ID)
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()

	handler.UploadAvatar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if avatars.body != "fake-png" || avatars.contentType != "image/png" {
		t.Fatalf("unexpected upload %+v", avatars)
	}
	if !strings.HasPrefix(avatars.key, alice.ID+"/") || !strings.HasSuffix(avatars.key, ".png") {
		t.Fatalf("unexpected object key %q", avatars.key)
	}

	stored, _ := users.FindByID(context.Background(), alice.ID)
	if stored.Avatar != "https://cdn.example.com/avatars/"+avatars.key {
		t.Fatalf("expected avatar url to be saved, got %q", stored.Avatar)
	}
}

func TestUserHandlerUploadAvatarRejections(t *testing.T) {
	cases := []struct {
		name        string
		store       AvatarStore
		contentType string
		body        string
		status      int
	}{
		{name: "not configured", contentType: "image/png", body: "x", status: http.StatusServiceUnavailable},
		{name: "unsupported type", store: &recordingAvatarStore{}, contentType: "text/plain", body: "x", status: http.StatusUnsupportedMediaType},
		{name: "too large", store: &recordingAvatarStore{}, contentType: "image/jpeg", body: strings.Repeat("x", 65), status: http.StatusRequestEntityTooLarge},
		{name: "upload failure", store: &recordingAvatarStore{err: errBoom}, contentType: "image/gif", body: "x", status: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := UserHandler{Users: seededUsers(), Avatars: tc.store, MaxAvatarBytes: 64}
			req := newAuthedRequest(http.MethodPut, "/api/v1/users/me/avatar", tc.body, alice.ID)
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()

			handler.UploadAvatar(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d got %d", tc.status, rec.Code)
			}
		})
	}
}
