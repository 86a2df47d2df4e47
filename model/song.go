package model

import "time"

// Song represents a stored recording in the shared library.
type Song struct {
	ID                int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID            int64     `json:"userId" gorm:"index"`
	Title             string    `json:"title" gorm:"size:255"`
	Artist            string    `json:"artist" gorm:"size:255"`
	Album             string    `json:"album" gorm:"size:255"`
	Genres            string    `json:"genres" gorm:"size:512"` // comma-joined canonical genre list
	Fingerprint       string    `json:"-" gorm:"size:8192;index:idx_songs_fingerprint,length:255"`
	FingerprintMethod string    `json:"fingerprintMethod" gorm:"size:16"`
	DurationSeconds   float64   `json:"durationSeconds"`
	ObjectPath        string    `json:"-" gorm:"size:512"` // object storage key for the original audio
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// User represents an account that can contribute songs.
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:128"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
