package domain

import "time"

// ConversationTurn is one completed question/answer exchange inside a
// thread. Turns are append-only.
type ConversationTurn struct {
	ID                string    `json:"id"`
	Query             string    `json:"query"`
	ReformulatedQuery string    `json:"reformulated_query,omitempty"`
	Answer            string    `json:"answer"`
	Sources           []Source  `json:"sources,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Thread is the unit of conversational memory: a stable id plus an
// ordered turn history. The pipeline only ever appends; retention is an
// external concern.
type Thread struct {
	ID    string             `json:"id"`
	Turns []ConversationTurn `json:"turns"`
}
