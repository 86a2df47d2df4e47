// Package dedup decides whether an incoming recording already exists in the
// library. Matching is two-tier: an exact fingerprint lookup first, then a
// fuzzy metadata comparison for re-encoded or re-tagged copies whose bytes
// and fingerprints differ.
package dedup

import (
	"context"
	"fmt"

	"EchoVault/logger"
	"EchoVault/model"
)

const (
	// matchThreshold is the similarity both title and artist must clear
	// independently. Requiring both fields (AND, not OR) rejects different
	// songs by the same artist and covers of the same title by someone
	// else, while still tolerating casing/punctuation drift in both.
	matchThreshold = 0.85

	// durationTolerance is the ± window in seconds for fuzzy candidates.
	durationTolerance = 5.0

	// fuzzyScanLimit caps the candidate set when no duration is known.
	// Without it a single untagged upload would scan the whole table.
	fuzzyScanLimit = 500
)

// SongFinder is the read-only repository surface the detector needs.
type SongFinder interface {
	// FindByFingerprint returns the first song with the exact fingerprint
	// value, or nil if none exists.
	FindByFingerprint(ctx context.Context, value string) (*model.Song, error)
	// FindCandidates returns songs whose duration falls within ±tolerance
	// of center. A center <= 0 means duration is unknown and candidates
	// are unfiltered, up to limit rows.
	FindCandidates(ctx context.Context, center, tolerance float64, limit int) ([]*model.Song, error)
}

// Metadata is the optional tag information accompanying a candidate upload.
type Metadata struct {
	Title           string
	Artist          string
	DurationSeconds float64 // 0 when unknown
}

// CheckFailedError wraps a repository failure during duplicate detection.
// The detector never retries; whether to admit the upload anyway is the
// caller's call.
type CheckFailedError struct {
	Err error
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("duplicate check failed: %v", e.Err)
}

func (e *CheckFailedError) Unwrap() error { return e.Err }

// Detector finds existing recordings that match an incoming one.
type Detector struct {
	songs SongFinder
}

// NewDetector creates a Detector over the given repository.
func NewDetector(songs SongFinder) *Detector {
	return &Detector{songs: songs}
}

// CheckDuplicate returns the existing song the candidate duplicates, or nil
// if the library has no match. Read-only; it never writes the repository.
func (d *Detector) CheckDuplicate(ctx context.Context, fp string, meta *Metadata) (*model.Song, error) {
	existing, err := d.songs.FindByFingerprint(ctx, fp)
	if err != nil {
		return nil, &CheckFailedError{Err: err}
	}
	if existing != nil {
		logger.Debug("exact fingerprint match",
			logger.Int64("songId", existing.ID),
			logger.String("method", existing.FingerprintMethod))
		return existing, nil
	}

	// The fuzzy tier needs both fields; one alone is too weak a signal.
	if meta == nil || meta.Title == "" || meta.Artist == "" {
		return nil, nil
	}

	candidates, err := d.songs.FindCandidates(ctx, meta.DurationSeconds, durationTolerance, fuzzyScanLimit)
	if err != nil {
		return nil, &CheckFailedError{Err: err}
	}

	for _, song := range candidates {
		titleSim := Similarity(meta.Title, song.Title)
		if titleSim < matchThreshold {
			continue
		}
		artistSim := Similarity(meta.Artist, song.Artist)
		if artistSim < matchThreshold {
			continue
		}
		logger.Debug("fuzzy metadata match",
			logger.Int64("songId", song.ID),
			logger.Float64("titleSim", titleSim),
			logger.Float64("artistSim", artistSim))
		return song, nil
	}

	return nil, nil
}
