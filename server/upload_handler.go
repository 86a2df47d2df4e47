package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"EchoVault/core/dedup"
	"EchoVault/logger"
	"EchoVault/model"

	"github.com/google/uuid"
)

// DedupUnavailableCode tells clients the library could not be consulted and
// the upload was rejected rather than admitted blind. Retryable.
const DedupUnavailableCode = "DEDUP_UNAVAILABLE"

var allowedAudioExt = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

// UploadSongHandler accepts a multipart audio upload, fingerprints it,
// rejects duplicates and stores the rest.
func (h *APIHandler) UploadSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	username, _ := GetUsernameFromContext(r.Context())

	maxBytes := h.cfg.MaxUploadSizeMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %dMB limit", h.cfg.MaxUploadSizeMB), "")
			return
		}
		writeError(w, http.StatusBadRequest, "Malformed multipart body", "")
		return
	}

	file, header, err := r.FormFile("songFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing songFile field", "")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedAudioExt[ext]
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported audio format: %s", ext), "")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("[Upload] failed to read payload", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to read uploaded file", "")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "Uploaded file is empty", "")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	artist := strings.TrimSpace(r.FormValue("artist"))
	album := strings.TrimSpace(r.FormValue("album"))
	genres := model.JoinGenres(model.NormalizeGenres(r.FormValue("genres")))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, ext)
	}

	duration := 0.0
	if raw := r.FormValue("duration"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			duration = v
		}
	}

	fp := h.fpGen.Generate(r.Context(), data)

	existing, err := h.detector.CheckDuplicate(r.Context(), fp.Value, &dedup.Metadata{
		Title:           title,
		Artist:          artist,
		DurationSeconds: duration,
	})
	if err != nil {
		// The library could not be consulted. Admitting the upload anyway
		// would let duplicates in silently, so reject and let the client retry.
		logger.Error("[Upload] duplicate check failed", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable,
			"Duplicate detection is temporarily unavailable", DedupUnavailableCode)
		return
	}
	if existing != nil {
		logger.Info("[Upload] rejected duplicate",
			logger.Int64("existingSongId", existing.ID),
			logger.String("title", title),
			logger.String("artist", artist))
		if h.hub != nil {
			h.hub.BroadcastDuplicateRejected(existing)
		}
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      "Song already exists in the library",
			"code":       DuplicateCode,
			"existingId": existing.ID,
		})
		return
	}

	objectPath := fmt.Sprintf("audio/%s%s", uuid.NewString(), ext)
	if err := h.store.PutAudio(r.Context(), objectPath, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		logger.Error("[Upload] failed to store audio object", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to store audio file", "")
		return
	}

	song := &model.Song{
		UserID:            userID,
		Title:             title,
		Artist:            artist,
		Album:             album,
		Genres:            genres,
		Fingerprint:       fp.Value,
		FingerprintMethod: string(fp.Method),
		DurationSeconds:   duration,
		ObjectPath:        objectPath,
	}

	songID, err := h.songRepo.CreateSong(r.Context(), song)
	if err != nil {
		logger.Error("[Upload] failed to create song record", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to save song", "")
		return
	}
	song.ID = songID

	logger.Info("[Upload] song stored",
		logger.Int64("songId", songID),
		logger.String("username", username),
		logger.String("title", title),
		logger.String("artist", artist),
		logger.String("fingerprintMethod", string(fp.Method)),
		logger.Int("bytes", len(data)))

	if h.hub != nil {
		h.hub.BroadcastSongAdded(song)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                songID,
		"fingerprintMethod": string(fp.Method),
	})
}

// DuplicateCode mirrors the structured code the upload client switches on.
const DuplicateCode = "DUPLICATE"
