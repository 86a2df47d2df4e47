package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"EchoVault/model"
)

// SongRepository defines the interface for song data operations. The
// duplicate detector only consumes its read side.
type SongRepository interface {
	CreateSong(ctx context.Context, song *model.Song) (int64, error)
	GetSongByID(ctx context.Context, id int64) (*model.Song, error)
	GetAllSongsByUserID(ctx context.Context, userID int64) ([]*model.Song, error)
	FindByFingerprint(ctx context.Context, value string) (*model.Song, error)
	FindCandidates(ctx context.Context, center, tolerance float64, limit int) ([]*model.Song, error)
	DeleteSong(ctx context.Context, id int64) error
}

// mysqlSongRepository implements SongRepository for MySQL.
type mysqlSongRepository struct {
	DB *sql.DB
}

// NewMySQLSongRepository creates a new instance of mysqlSongRepository.
func NewMySQLSongRepository(db *sql.DB) SongRepository {
	return &mysqlSongRepository{DB: db}
}

const songColumns = `id, user_id, title, artist, album, genres, fingerprint, fingerprint_method, duration_seconds, object_path, created_at, updated_at`

func scanSong(row interface{ Scan(dest ...interface{}) error }) (*model.Song, error) {
	song := &model.Song{}
	err := row.Scan(&song.ID, &song.UserID, &song.Title, &song.Artist, &song.Album,
		&song.Genres, &song.Fingerprint, &song.FingerprintMethod,
		&song.DurationSeconds, &song.ObjectPath, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return song, nil
}

// CreateSong adds a new song to the database.
func (r *mysqlSongRepository) CreateSong(ctx context.Context, song *model.Song) (int64, error) {
	query := `INSERT INTO songs (user_id, title, artist, album, genres, fingerprint, fingerprint_method, duration_seconds, object_path, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateSong: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.ExecContext(ctx, song.UserID, song.Title, song.Artist, song.Album,
		song.Genres, song.Fingerprint, song.FingerprintMethod,
		song.DurationSeconds, song.ObjectPath, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateSong: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateSong: %w", err)
	}
	return id, nil
}

// GetSongByID retrieves a song by its ID.
func (r *mysqlSongRepository) GetSongByID(ctx context.Context, id int64) (*model.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = ?`
	song, err := scanSong(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Song not found
		}
		return nil, fmt.Errorf("failed to scan song by ID %d: %w", id, err)
	}
	return song, nil
}

// GetAllSongsByUserID retrieves all songs contributed by a user.
func (r *mysqlSongRepository) GetAllSongsByUserID(ctx context.Context, userID int64) ([]*model.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in GetAllSongsByUserID: %w", err)
		}
		songs = append(songs, song)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllSongsByUserID: %w", err)
	}

	return songs, nil
}

// FindByFingerprint retrieves the first song with the exact fingerprint
// value. Fingerprints are treated as unique by convention, not enforced with
// a constraint, so first match wins.
func (r *mysqlSongRepository) FindByFingerprint(ctx context.Context, value string) (*model.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE fingerprint = ? ORDER BY id ASC LIMIT 1`
	song, err := scanSong(r.DB.QueryRowContext(ctx, query, value))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No match
		}
		return nil, fmt.Errorf("failed to scan song by fingerprint: %w", err)
	}
	return song, nil
}

// FindCandidates retrieves songs within ±tolerance seconds of center for the
// fuzzy duplicate tier. A center <= 0 means duration is unknown; the scan is
// then unfiltered but still capped at limit rows.
func (r *mysqlSongRepository) FindCandidates(ctx context.Context, center, tolerance float64, limit int) ([]*model.Song, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if center > 0 {
		query := `SELECT ` + songColumns + ` FROM songs WHERE duration_seconds BETWEEN ? AND ? ORDER BY id ASC LIMIT ?`
		rows, err = r.DB.QueryContext(ctx, query, center-tolerance, center+tolerance, limit)
	} else {
		query := `SELECT ` + songColumns + ` FROM songs ORDER BY id ASC LIMIT ?`
		rows, err = r.DB.QueryContext(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate candidates: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in FindCandidates: %w", err)
		}
		songs = append(songs, song)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in FindCandidates: %w", err)
	}

	return songs, nil
}

// DeleteSong removes a song row.
func (r *mysqlSongRepository) DeleteSong(ctx context.Context, id int64) error {
	stmt, err := r.DB.PrepareContext(ctx, `DELETE FROM songs WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteSong: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("failed to execute DeleteSong: %w", err)
	}
	return nil
}
