package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"EchoVault/config"
	"EchoVault/core/dedup"
	"EchoVault/core/fingerprint"
	"EchoVault/repository"
	"EchoVault/storage"
)

// APIHandler handles all API requests.
type APIHandler struct {
	songRepo repository.SongRepository
	userRepo repository.UserRepository
	detector *dedup.Detector
	fpGen    *fingerprint.Generator
	store    storage.ObjectStore
	hub      *EventHub
	cfg      *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	songRepo repository.SongRepository,
	userRepo repository.UserRepository,
	detector *dedup.Detector,
	fpGen *fingerprint.Generator,
	store storage.ObjectStore,
	hub *EventHub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		songRepo: songRepo,
		userRepo: userRepo,
		detector: detector,
		fpGen:    fpGen,
		store:    store,
		hub:      hub,
		cfg:      cfg,
	}
}

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

// GetUserIDFromContext extracts the authenticated user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the authenticated username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(usernameKey).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a structured JSON error. The code is a machine-readable
// discriminator clients can switch on; it may be empty.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
