package model

import "time"

// Message is one entry of the append-only chat log of a file.
type Message struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	IsUserMessage bool      `json:"isUserMessage"`
	FileID        string    `json:"fileId"`
	UserID        string    `json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Page is one page-level text unit extracted from a PDF. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is an embedded text span stored in the vector index under the
// namespace of its owning file.
type Chunk struct {
	ID        string
	Namespace string
	Page      int
	Text      string
	Vector    []float32
}

// Match is a similarity search hit.
type Match struct {
	Chunk Chunk
	Score float64
}

// PlanLimits is the quota a user's plan applies to a single upload.
type PlanLimits struct {
	Name             string
	PagesPerPDF      int
	MaxFileSizeBytes int64
	IsSubscribed     bool
}
