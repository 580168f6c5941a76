package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixelclass/render-judge/internal/game"
	"github.com/pixelclass/render-judge/internal/levels"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.repo != nil {
		if err := s.repo.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Level handlers

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.List()

	type levelSummary struct {
		Name      string  `json:"name"`
		Title     string  `json:"title,omitempty"`
		MaxPoints float64 `json:"maxPoints"`
		Scenarios int     `json:"scenarios"`
		Drawn     bool    `json:"drawn"`
	}

	out := make([]levelSummary, 0, len(list))
	for _, lvl := range list {
		out = append(out, levelSummary{
			Name:      lvl.Name,
			Title:     lvl.Title,
			MaxPoints: lvl.MaxPoints,
			Scenarios: len(lvl.Scenarios),
			Drawn:     s.game.IsLevelDrawn(lvl.Name),
		})
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	lvl := s.catalog.Get(name)
	if lvl == nil {
		respondError(w, http.StatusNotFound, "level_not_found", "level not found")
		return
	}
	respondJSON(w, http.StatusOK, lvl)
}

func (s *Server) handleActivateLevel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.game.ActivateLevel(r.Context(), name); err != nil {
		if errors.Is(err, game.ErrLevelUnknown) {
			respondError(w, http.StatusNotFound, "level_not_found", "level not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "activate_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"currentLevel": name})
}

func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var code levels.CodeBundle
	if err := json.NewDecoder(r.Body).Decode(&code); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid code bundle")
		return
	}

	if err := s.game.SubmitLearnerCode(r.Context(), name, code); err != nil {
		if errors.Is(err, game.ErrLevelUnknown) {
			respondError(w, http.StatusNotFound, "level_not_found", "level not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "submit_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"level": name})
}

func (s *Server) handleResetLevel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.game.ResetLevel(r.Context(), name); err != nil {
		if errors.Is(err, game.ErrLevelUnknown) {
			respondError(w, http.StatusNotFound, "level_not_found", "level not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "reset_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"level": name})
}

func (s *Server) handleLevelScore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.catalog.Get(name) == nil {
		respondError(w, http.StatusNotFound, "level_not_found", "level not found")
		return
	}

	type scoreResponse struct {
		LevelName string            `json:"levelName"`
		Accuracy  float64           `json:"accuracy"`
		Points    float64           `json:"points"`
		BestTime  *int64            `json:"bestTime,omitempty"`
		Milestone *levels.Threshold `json:"nextMilestone,omitempty"`
	}

	resp := scoreResponse{LevelName: name}
	if st := s.game.LevelScore(name); st != nil {
		resp.Accuracy = st.Accuracy
		resp.Points = st.Points
		resp.BestTime = st.BestTimeMs
	}
	resp.Milestone = s.game.Milestone(name)

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLevelDrawn(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.catalog.Get(name) == nil {
		respondError(w, http.StatusNotFound, "level_not_found", "level not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"drawn": s.game.IsLevelDrawn(name)})
}

func (s *Server) handleScenarioResult(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	scenarioID := chi.URLParam(r, "id")

	lvl := s.catalog.Get(name)
	if lvl == nil || lvl.Scenario(scenarioID) == nil {
		respondError(w, http.StatusNotFound, "scenario_not_found", "scenario not found")
		return
	}

	res := s.game.Result(scenarioID)
	if res == nil {
		// No data yet: the scenario simply has not scored.
		respondJSON(w, http.StatusOK, map[string]any{"scenarioId": scenarioID, "available": false})
		return
	}

	type resultResponse struct {
		ScenarioID string    `json:"scenarioId"`
		Available  bool      `json:"available"`
		Accuracy   float64   `json:"accuracy"`
		DiffImage  string    `json:"diffImage,omitempty"`
		ComputedAt time.Time `json:"computedAt"`
	}

	resp := resultResponse{
		ScenarioID: scenarioID,
		Available:  true,
		Accuracy:   res.Accuracy,
		ComputedAt: res.ComputedAt,
	}
	if res.DiffImage != nil {
		if dataURL, err := res.DiffImage.EncodeDataURL(); err == nil {
			resp.DiffImage = dataURL
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// Score handlers

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.game.Totals())
}
