// Package archive persists finished conversation transcripts to a local
// document store. One row per session id; the transcript and scenario
// facts are stored as JSON documents.
package archive

import (
	"context"
	"time"

	"github.com/nbarki/shipdesk/pkg/persona"
)

// Record is everything persisted for a finished session
type Record struct {
	SessionID  string             `json:"sessionId"`
	Transcript []persona.Exchange `json:"transcript"`
	Facts      *persona.Facts     `json:"facts,omitempty"`
	TurnCount  int                `json:"turnCount"`
	EndedAt    time.Time          `json:"endedAt"`
}

// Archiver persists transcripts at session end.
//
// Archiving an empty transcript for an id that already has a record is a
// no-op, so repeated end-of-session calls never clobber archived data.
type Archiver interface {
	Archive(ctx context.Context, rec Record) error
	Close() error
}
