package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"EchoVault/logger"

	"github.com/gorilla/mux"
)

// GetSongsHandler lists the caller's songs.
func (h *APIHandler) GetSongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	songs, err := h.songRepo.GetAllSongsByUserID(r.Context(), userID)
	if err != nil {
		logger.Error("[Songs] failed to list songs", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list songs", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

// GetSongHandler returns a single song's metadata.
func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid song ID", "")
		return
	}

	song, err := h.songRepo.GetSongByID(r.Context(), id)
	if err != nil {
		logger.Error("[Songs] failed to get song", logger.Int64("songId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get song", "")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found", "")
		return
	}

	writeJSON(w, http.StatusOK, song)
}

// StreamSongHandler serves the original audio object for a song.
func (h *APIHandler) StreamSongHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid song ID", "")
		return
	}

	song, err := h.songRepo.GetSongByID(r.Context(), id)
	if err != nil || song == nil {
		writeError(w, http.StatusNotFound, "Song not found", "")
		return
	}

	object, err := h.store.GetAudio(r.Context(), song.ObjectPath)
	if err != nil {
		logger.Error("[Songs] failed to read audio object",
			logger.Int64("songId", id),
			logger.String("objectPath", song.ObjectPath),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to read audio", "")
		return
	}
	defer object.Close()

	ext := strings.ToLower(filepath.Ext(song.ObjectPath))
	contentType := allowedAudioExt[ext]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("[Songs] stream interrupted", logger.Int64("songId", id), logger.ErrorField(err))
	}
}

// DeleteSongHandler removes a song the caller owns, including its audio object.
func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid song ID", "")
		return
	}

	song, err := h.songRepo.GetSongByID(r.Context(), id)
	if err != nil {
		logger.Error("[Songs] failed to get song", logger.Int64("songId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get song", "")
		return
	}
	if song == nil {
		writeError(w, http.StatusNotFound, "Song not found", "")
		return
	}
	if song.UserID != userID {
		writeError(w, http.StatusForbidden, "Not the owner of this song", "")
		return
	}

	if err := h.songRepo.DeleteSong(r.Context(), id); err != nil {
		logger.Error("[Songs] failed to delete song", logger.Int64("songId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete song", "")
		return
	}

	// The object removal is best effort. An orphaned object is recoverable;
	// a dangling row is not.
	if song.ObjectPath != "" {
		if err := h.store.RemoveAudio(r.Context(), song.ObjectPath); err != nil {
			logger.Warn("[Songs] failed to remove audio object",
				logger.String("objectPath", song.ObjectPath),
				logger.ErrorField(err))
		}
	}

	if h.hub != nil {
		h.hub.BroadcastSongRemoved(id)
	}

	w.WriteHeader(http.StatusNoContent)
}
