package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"agent-arena/internal/arena"
	"agent-arena/internal/game"
)

type createGameRequest struct {
	GameCost *int64 `json:"gameCost"`
}

type turnRequest struct {
	Handle string `json:"handle"`
}

type endGameRequest struct {
	Winner string `json:"winner"`
}

type createUserRequest struct {
	Handle string `json:"handle"`
	Prompt string `json:"prompt"`
	Tokens int64  `json:"tokens"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !s.decode(w, r, &req) {
		return
	}
	cost := s.arena.DefaultCost()
	if req.GameCost != nil {
		cost = *req.GameCost
	}
	g, err := s.arena.CreateGame(r.Context(), cost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "game": g})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "gameId")
	if !ok {
		return
	}
	g, messages, err := s.arena.Game(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "game": g, "messages": messages})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "gameId")
	if !ok {
		return
	}
	var req turnRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		result game.TurnResult
		err    error
	)
	if handle := strings.TrimSpace(req.Handle); handle != "" {
		result, err = s.arena.AdvanceTurnAs(r.Context(), id, handle)
	} else {
		result, err = s.arena.AdvanceTurn(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "response": result.Text, "turn": result})
}

func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "gameId")
	if !ok {
		return
	}
	var req endGameRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Winner) == "" {
		s.writeError(w, r, arena.New(arena.CodeInvalidArgument, "winner is required"))
		return
	}
	settlement, err := s.arena.EndGame(r.Context(), id, req.Winner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settlement": settlement})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "gameId")
	if !ok {
		return
	}
	summary, err := s.arena.Summary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": summary})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.arena.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "userId")
	if !ok {
		return
	}
	user, err := s.arena.GetUser(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.arena.CreateUser(r.Context(), req.Handle, req.Prompt, req.Tokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}

// pathID parses a positive integer path value, writing a 400 when it is not
// one.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, arena.WithMetadata(arena.CodeInvalidArgument, "invalid "+name, map[string]string{name: raw}))
		return 0, false
	}
	return id, true
}

// decode reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, arena.Wrap(arena.CodeInvalidArgument, "malformed request body", err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := arena.CodeOf(err)
	status := code.HTTPStatus()
	attrs := []any{slog.String("code", string(code)), slog.String("error", err.Error())}
	var domainErr *arena.Error
	if errors.As(err, &domainErr) {
		for k, v := range domainErr.Metadata {
			attrs = append(attrs, slog.String(k, v))
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		s.logger.InfoContext(r.Context(), "request rejected", attrs...)
	}

	message := err.Error()
	if domainErr != nil && domainErr.Message != "" && status >= http.StatusInternalServerError {
		message = domainErr.Message
	}
	writeJSON(w, status, map[string]any{"success": false, "error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
