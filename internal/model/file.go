// Package model contains the records shared across packages: uploaded
// files, chat messages, indexed chunks and plan limits.
package model

import (
	"time"
)

// UploadStatus describes the ingestion lifecycle of a File. A file starts
// PENDING, moves to PROCESSING when a worker picks it up and ends in exactly
// one of SUCCESS or FAILED.
type UploadStatus string

const (
	StatusPending    UploadStatus = "PENDING"
	StatusProcessing UploadStatus = "PROCESSING"
	StatusSuccess    UploadStatus = "SUCCESS"
	StatusFailed     UploadStatus = "FAILED"
)

// Terminal reports whether no further status transition is allowed.
func (s UploadStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s UploadStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// File is an uploaded PDF owned by exactly one user. Key is the object
// storage key and doubles as the idempotency key for ingestion.
type File struct {
	ID            string       `json:"id"`
	Key           string       `json:"key"`
	Name          string       `json:"name"`
	URL           string       `json:"url"`
	UserID        string       `json:"userId"`
	UploadStatus  UploadStatus `json:"uploadStatus"`
	StatusMessage string       `json:"statusMessage,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// OwnedBy reports whether userID owns the file.
func (f *File) OwnedBy(userID string) bool {
	return f != nil && userID != "" && f.UserID == userID
}
