package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nbarki/shipdesk/internal/observability"
	"github.com/nbarki/shipdesk/internal/tracing"
	"github.com/nbarki/shipdesk/pkg/archive"
	"github.com/nbarki/shipdesk/pkg/persona"
)

// fallbackReply is returned to the client when the completion call fails.
const fallbackReply = "Sorry, the AI had an issue responding."

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Turn  int    `json:"turn"`
}

type endChatResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if !s.beginRequest() {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is shutting down"})
		return
	}
	defer s.inFlightReqs.Done()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Message == "" || req.SessionID == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "message and sessionId are required"})
		return
	}

	ctx := tracing.WithSessionID(r.Context(), req.SessionID)
	logger := tracing.PropagateToLogger(ctx, s.logger)

	start := time.Now()
	reply, turn, err := s.runTurn(ctx, req.SessionID, req.Message)
	observability.RecordChatTurn(time.Since(start), err == nil)

	if err != nil {
		logger.Error().Err(err).
			Str("session_id", req.SessionID).
			Msg("Chat turn failed")
		respondJSON(w, http.StatusInternalServerError, chatResponse{Reply: fallbackReply})
		return
	}

	logger.Info().
		Str("session_id", req.SessionID).
		Int("turn", turn).
		Int("reply_chars", len(reply)).
		Msg("Chat turn completed")

	// Simulated typing happens after the session lock is released, so a
	// slow reply never blocks other requests for the same session.
	s.typingPause(ctx, reply)

	respondJSON(w, http.StatusOK, chatResponse{Reply: reply, Turn: turn})
}

// runTurn executes one conversation turn while holding the session lock.
// A failed completion records nothing: the turn counter and transcript
// only advance together on success.
func (s *Server) runTurn(ctx context.Context, sessionID, message string) (string, int, error) {
	lock := s.store.Acquire(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess := s.store.GetOrCreate(sessionID)
	turn := sess.TurnCount + 1

	preq := s.engine.CompletionRequest(turn, sess.Facts, sess.Transcript, message)

	// The provider call survives a client disconnect; once a turn is in
	// flight it either completes and is recorded, or fails cleanly.
	callCtx, cancel := context.WithTimeout(tracing.Detach(ctx), providerTimeout)
	defer cancel()

	ctx, span := tracing.StartTurnSpan(callCtx, s.completer.Name(), turn)
	defer span.End()

	start := time.Now()
	resp, err := s.completer.Complete(ctx, preq)
	observability.RecordProviderCall(s.completer.Name(), time.Since(start), err == nil)
	if err != nil {
		return "", 0, err
	}

	if err := s.store.RecordTurn(sessionID, message, resp.Content); err != nil {
		return "", 0, err
	}

	return resp.Content, turn, nil
}

func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	if !s.beginRequest() {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is shutting down"})
		return
	}
	defer s.inFlightReqs.Done()

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.SessionID == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}

	ctx := tracing.WithSessionID(r.Context(), req.SessionID)
	logger := tracing.PropagateToLogger(ctx, s.logger)

	lock := s.store.Acquire(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	rec := archive.Record{
		SessionID: req.SessionID,
		EndedAt:   time.Now().UTC(),
	}
	sess, ok := s.store.Peek(req.SessionID)
	if ok {
		rec.Transcript = sess.Transcript
		rec.Facts = sess.Facts
		rec.TurnCount = sess.TurnCount
	}
	if rec.Transcript == nil {
		rec.Transcript = []persona.Exchange{}
	}

	archiveCtx, cancel := context.WithTimeout(tracing.Detach(ctx), archiveTimeout)
	defer cancel()

	archiveCtx, span := tracing.StartArchiveSpan(archiveCtx, rec.TurnCount)
	defer span.End()

	if err := s.archiver.Archive(archiveCtx, rec); err != nil {
		logger.Error().Err(err).
			Str("session_id", req.SessionID).
			Msg("Failed to archive transcript, session retained")
		respondJSON(w, http.StatusInternalServerError, endChatResponse{Message: "Failed to save transcript."})
		return
	}

	if ok {
		s.store.Remove(req.SessionID)
	}

	logger.Info().
		Str("session_id", req.SessionID).
		Int("turns", rec.TurnCount).
		Msg("Session ended and archived")

	respondJSON(w, http.StatusOK, endChatResponse{Message: "Chat ended. Transcript saved."})
}

// typingPause sleeps proportionally to the reply length, respecting the
// configured cap and the request context.
func (s *Server) typingPause(ctx context.Context, reply string) {
	if s.typingDelay <= 0 || len(reply) == 0 {
		return
	}
	d := time.Duration(len(reply)) * s.typingDelay
	if s.typingCap > 0 && d > s.typingCap {
		d = s.typingCap
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
