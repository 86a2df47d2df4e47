package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"EchoVault/config"
	"EchoVault/core/auth"
	"EchoVault/core/dedup"
	"EchoVault/core/fingerprint"
	"EchoVault/model"
)

type fakeSongRepo struct {
	songs      []*model.Song
	nextID     int64
	created    []*model.Song
	failLookup bool
}

func (f *fakeSongRepo) CreateSong(_ context.Context, song *model.Song) (int64, error) {
	f.nextID++
	clone := *song
	clone.ID = f.nextID
	f.created = append(f.created, &clone)
	f.songs = append(f.songs, &clone)
	return f.nextID, nil
}

func (f *fakeSongRepo) GetSongByID(_ context.Context, id int64) (*model.Song, error) {
	for _, s := range f.songs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSongRepo) GetAllSongsByUserID(_ context.Context, userID int64) ([]*model.Song, error) {
	var out []*model.Song
	for _, s := range f.songs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSongRepo) FindByFingerprint(_ context.Context, value string) (*model.Song, error) {
	if f.failLookup {
		return nil, errors.New("connection refused")
	}
	for _, s := range f.songs {
		if s.Fingerprint == value {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSongRepo) FindCandidates(_ context.Context, center, tolerance float64, limit int) ([]*model.Song, error) {
	if f.failLookup {
		return nil, errors.New("connection refused")
	}
	var out []*model.Song
	for _, s := range f.songs {
		if center <= 0 || (s.DurationSeconds >= center-tolerance && s.DurationSeconds <= center+tolerance) {
			out = append(out, s)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSongRepo) DeleteSong(_ context.Context, id int64) error {
	for i, s := range f.songs {
		if s.ID == id {
			f.songs = append(f.songs[:i], f.songs[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) (int64, error) {
	f.nextID++
	clone := *user
	clone.ID = f.nextID
	f.users[user.Username] = &clone
	return f.nextID, nil
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return f.users[username], nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

type fakeObjectStore struct {
	objects map[string][]byte
	puts    int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) PutAudio(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	f.puts++
	return nil
}

func (f *fakeObjectStore) GetAudio(_ context.Context, objectName string) (io.ReadCloser, error) {
	data, ok := f.objects[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) RemoveAudio(_ context.Context, objectName string) error {
	delete(f.objects, objectName)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-secret",
		MaxUploadSizeMB: 10,
	}
}

func newTestHandler(songs *fakeSongRepo, store *fakeObjectStore) *APIHandler {
	return NewAPIHandler(
		songs,
		newFakeUserRepo(),
		dedup.NewDetector(songs),
		fingerprint.NewGenerator(""), // hash fallback only
		store,
		nil,
		testConfig(),
	)
}

func uploadRequest(t *testing.T, token string, fields map[string]string, filename string, payload []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField(%s): %v", name, err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("songFile", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(payload); err != nil {
			t.Fatalf("write payload: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/songs/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func mintToken(t *testing.T, h *APIHandler, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(h.cfg.JWTSecret, userID, "tester")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func TestUploadSongStoresNewSong(t *testing.T) {
	songs := &fakeSongRepo{}
	store := newFakeObjectStore()
	h := newTestHandler(songs, store)
	token := mintToken(t, h, 7)

	req := uploadRequest(t, token, map[string]string{
		"title":    "Paranoid Android",
		"artist":   "Radiohead",
		"album":    "OK Computer",
		"genres":   "rock, Rock, alternative",
		"duration": "386.5",
	}, "paranoid.mp3", []byte("fake mp3 bytes"))
	rec := httptest.NewRecorder()

	h.AuthMiddleware(h.UploadSongHandler)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID                int64  `json:"id"`
		FingerprintMethod string `json:"fingerprintMethod"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 {
		t.Errorf("id = %d, want 1", resp.ID)
	}
	if resp.FingerprintMethod != string(fingerprint.MethodHash) {
		t.Errorf("fingerprintMethod = %q, want hash", resp.FingerprintMethod)
	}

	if len(songs.created) != 1 {
		t.Fatalf("created %d songs, want 1", len(songs.created))
	}
	created := songs.created[0]
	if created.UserID != 7 {
		t.Errorf("UserID = %d, want 7", created.UserID)
	}
	if !strings.HasPrefix(created.Fingerprint, fingerprint.HashPrefix) {
		t.Errorf("Fingerprint %q does not carry hash prefix", created.Fingerprint)
	}
	if created.Genres != "rock,alternative" {
		t.Errorf("Genres = %q, want deduplicated canonical list", created.Genres)
	}
	if created.DurationSeconds != 386.5 {
		t.Errorf("DurationSeconds = %v, want 386.5", created.DurationSeconds)
	}
	if store.puts != 1 {
		t.Errorf("object puts = %d, want 1", store.puts)
	}
	if created.ObjectPath == "" {
		t.Error("ObjectPath is empty")
	}
	if _, ok := store.objects[created.ObjectPath]; !ok {
		t.Errorf("object %q not stored", created.ObjectPath)
	}
}

func TestUploadSongRejectsExactDuplicate(t *testing.T) {
	songs := &fakeSongRepo{}
	store := newFakeObjectStore()
	h := newTestHandler(songs, store)
	token := mintToken(t, h, 1)

	payload := []byte("identical audio bytes")

	first := uploadRequest(t, token, map[string]string{"title": "One", "artist": "A"}, "one.mp3", payload)
	rec := httptest.NewRecorder()
	h.AuthMiddleware(h.UploadSongHandler)(rec, first)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d, want 201", rec.Code)
	}

	// Same bytes hash to the same fingerprint even under different metadata.
	second := uploadRequest(t, token, map[string]string{"title": "Totally Different", "artist": "B"}, "two.mp3", payload)
	rec = httptest.NewRecorder()
	h.AuthMiddleware(h.UploadSongHandler)(rec, second)

	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Code       string `json:"code"`
		ExistingID int64  `json:"existingId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != DuplicateCode {
		t.Errorf("code = %q, want %q", resp.Code, DuplicateCode)
	}
	if resp.ExistingID != 1 {
		t.Errorf("existingId = %d, want 1", resp.ExistingID)
	}

	if len(songs.created) != 1 {
		t.Errorf("created %d songs, want 1", len(songs.created))
	}
	if store.puts != 1 {
		t.Errorf("object puts = %d, want 1 (duplicate must not be stored)", store.puts)
	}
}

func TestUploadSongRejectsFuzzyDuplicate(t *testing.T) {
	songs := &fakeSongRepo{
		songs: []*model.Song{{
			ID:              1,
			Title:           "Bohemian Rhapsody",
			Artist:          "Queen",
			Fingerprint:     "HASH:existing",
			DurationSeconds: 354,
		}},
		nextID: 1,
	}
	store := newFakeObjectStore()
	h := newTestHandler(songs, store)
	token := mintToken(t, h, 1)

	// Different bytes, near-identical tags within the duration window.
	req := uploadRequest(t, token, map[string]string{
		"title":    "bohemian rhapsody!",
		"artist":   "queen",
		"duration": "352",
	}, "br.flac", []byte("a re-encoded copy"))
	rec := httptest.NewRecorder()
	h.AuthMiddleware(h.UploadSongHandler)(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body %s", rec.Code, rec.Body.String())
	}
	if store.puts != 0 {
		t.Errorf("object puts = %d, want 0", store.puts)
	}
}

func TestUploadSongDedupUnavailable(t *testing.T) {
	songs := &fakeSongRepo{failLookup: true}
	store := newFakeObjectStore()
	h := newTestHandler(songs, store)
	token := mintToken(t, h, 1)

	req := uploadRequest(t, token, map[string]string{"title": "X", "artist": "Y"}, "x.mp3", []byte("bytes"))
	rec := httptest.NewRecorder()
	h.AuthMiddleware(h.UploadSongHandler)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != DedupUnavailableCode {
		t.Errorf("code = %q, want %q", resp.Code, DedupUnavailableCode)
	}
	if len(songs.created) != 0 || store.puts != 0 {
		t.Error("nothing may be admitted while the library is unreachable")
	}
}

func TestUploadSongValidation(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		payload    []byte
		wantStatus int
	}{
		{"missing file field", "", nil, http.StatusBadRequest},
		{"unsupported extension", "notes.txt", []byte("text"), http.StatusUnsupportedMediaType},
		{"empty payload", "empty.mp3", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			songs := &fakeSongRepo{}
			h := newTestHandler(songs, newFakeObjectStore())
			token := mintToken(t, h, 1)

			req := uploadRequest(t, token, map[string]string{"title": "T"}, tt.filename, tt.payload)
			rec := httptest.NewRecorder()
			h.AuthMiddleware(h.UploadSongHandler)(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if len(songs.created) != 0 {
				t.Error("invalid upload must not create a song")
			}
		})
	}
}

func TestUploadSongRequiresAuth(t *testing.T) {
	h := newTestHandler(&fakeSongRepo{}, newFakeObjectStore())

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := uploadRequest(t, tt.token, nil, "a.mp3", []byte("bytes"))
			rec := httptest.NewRecorder()
			h.AuthMiddleware(h.UploadSongHandler)(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestUploadSongTitleFallsBackToFilename(t *testing.T) {
	songs := &fakeSongRepo{}
	h := newTestHandler(songs, newFakeObjectStore())
	token := mintToken(t, h, 1)

	req := uploadRequest(t, token, nil, "Untitled Session.mp3", []byte("bytes"))
	rec := httptest.NewRecorder()
	h.AuthMiddleware(h.UploadSongHandler)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	if got := songs.created[0].Title; got != "Untitled Session" {
		t.Errorf("Title = %q, want filename without extension", got)
	}
}
