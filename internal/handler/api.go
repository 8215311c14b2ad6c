package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/preupac/simulador/internal/exam"
	"github.com/preupac/simulador/internal/model"
)

type apiError struct {
	Error string      `json:"error"`
	State *exam.State `json:"state,omitempty"`
}

// stateResponse is the session state plus a warning when the finished
// result could not be written to the spreadsheet.
type stateResponse struct {
	exam.State
	Warning string `json:"warning,omitempty"`
}

type answerRequest struct {
	Question int          `json:"question"`
	Option   model.Option `json:"option"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// apiDo runs op on the exam session and answers with the new state. On
// failure the current state is included so the widget can resync.
func (h *Handler) apiDo(w http.ResponseWriter, r *http.Request, op func(*exam.Session) error) {
	s, err := h.session(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
		return
	}
	if op != nil {
		if err := op(s); err != nil {
			st := s.State()
			writeJSON(w, errStatus(err), apiError{Error: err.Error(), State: &st})
			return
		}
	}
	resp := stateResponse{State: s.State()}
	if resp.Phase == exam.PhaseReview {
		if sum, err := s.Summary(); err == nil {
			if err := h.saveResult(r.Context(), s, sum); err != nil {
				resp.Warning = resultWarning(r, err)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) apiState(w http.ResponseWriter, r *http.Request) {
	h.apiDo(w, r, nil)
}

func decodeAnswer(w http.ResponseWriter, r *http.Request) (answerRequest, error) {
	var req answerRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req)
	return req, err
}

func (h *Handler) apiAnswer(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAnswer(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}
	h.apiDo(w, r, func(s *exam.Session) error {
		return s.Answer(req.Question, req.Option)
	})
}

func (h *Handler) apiClear(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAnswer(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}
	h.apiDo(w, r, func(s *exam.Session) error {
		return s.Clear(req.Question)
	})
}

func (h *Handler) apiPause(w http.ResponseWriter, r *http.Request) {
	h.apiDo(w, r, (*exam.Session).Pause)
}

func (h *Handler) apiResume(w http.ResponseWriter, r *http.Request) {
	h.apiDo(w, r, (*exam.Session).Resume)
}

func (h *Handler) apiFinish(w http.ResponseWriter, r *http.Request) {
	h.apiDo(w, r, func(s *exam.Session) error {
		_, err := s.Finish()
		return err
	})
}
