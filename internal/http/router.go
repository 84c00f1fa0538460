// Package http exposes the conversation over a local control API.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"speaking-practice/internal/models"
	"speaking-practice/internal/observability"
	"speaking-practice/internal/observability/metrics"
	"speaking-practice/internal/schema"
	"speaking-practice/internal/service/conversation"
	"speaking-practice/internal/service/llm"
	"speaking-practice/internal/service/turn"
)

// maxBodyBytes bounds request bodies; the largest is a custom prompt.
const maxBodyBytes = 64 << 10

// Controller is the conversation surface the API drives. Implemented by
// *conversation.Coordinator.
type Controller interface {
	State() conversation.State
	Turns() []turn.ConversationTurn
	StartRecording() error
	StopRecording(supplied string) error
	ObserveTranscript(text string)
	SubmitText(text string) error
	Reset()
	Settings() models.Settings
	UpdateSettings(s models.Settings) error
}

// Placement stores the placement test outcome. Implemented by *prefs.Store.
type Placement interface {
	TestCompleted() bool
	TestResult() (models.TestResult, bool)
	SaveTestResult(r models.TestResult) error
}

// ReadyFunc reports whether the conversation can accept commands.
type ReadyFunc func() bool

type stopRequest struct {
	Transcript string `json:"transcript" validate:"max=4000"`
}

type transcriptRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type settingsRequest struct {
	Difficulty   int    `json:"difficulty" validate:"min=1,max=3"`
	Speed        int    `json:"speed" validate:"min=1,max=5"`
	CustomPrompt string `json:"customPrompt" validate:"max=4000"`
	Template     string `json:"template" validate:"omitempty,oneof=default travel business interview custom"`
}

type placementRequest struct {
	Score *int `json:"score" validate:"required,min=0,max=10"`
}

type placementResponse struct {
	Completed bool               `json:"completed"`
	Result    *models.TestResult `json:"result,omitempty"`
	Settings  *models.Settings   `json:"settings,omitempty"`
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

type handler struct {
	ctrl      Controller
	placement Placement
	validator *schema.Validator
}

// NewRouter constructs the HTTP router for the control API. A nil placement
// or hub disables those routes; a nil ready func always reports ready.
func NewRouter(ctrl Controller, placement Placement, hub *Hub, ready ReadyFunc) http.Handler {
	h := &handler{ctrl: ctrl, placement: placement, validator: schema.New()}
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(metrics.DefaultMetrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Get("/turns", h.turns)
		r.Post("/recording/start", h.startRecording)
		r.Post("/recording/stop", h.stopRecording)
		r.Post("/transcript/live", h.observeTranscript)
		r.Post("/messages", h.submitMessage)
		r.Post("/reset", h.reset)
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)
		if placement != nil {
			r.Get("/placement", h.getPlacement)
			r.Put("/placement", h.putPlacement)
		}
		if hub != nil {
			r.Get("/events", hub.ServeHTTP)
		}
	})

	return r
}

func (h *handler) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

func (h *handler) turns(w http.ResponseWriter, _ *http.Request) {
	turns := h.ctrl.Turns()
	if turns == nil {
		turns = []turn.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *handler) startRecording(w http.ResponseWriter, _ *http.Request) {
	if err := h.ctrl.StartRecording(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.State())
}

func (h *handler) stopRecording(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	if err := h.ctrl.StopRecording(req.Transcript); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.State())
}

func (h *handler) observeTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.ctrl.ObserveTranscript(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) submitMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	if err := h.ctrl.SubmitText(req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.State())
}

func (h *handler) reset(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.Reset()
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

func (h *handler) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Settings())
}

func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	s := models.Settings{
		Difficulty:   req.Difficulty,
		Speed:        req.Speed,
		CustomPrompt: strings.TrimSpace(req.CustomPrompt),
	}
	switch req.Template {
	case "", llm.TemplateCustom:
		// keep the prompt as sent
	case llm.TemplateDefault:
		s.CustomPrompt = ""
	default:
		s.CustomPrompt = llm.TemplatePrompt(req.Template, req.Difficulty)
	}

	if err := h.ctrl.UpdateSettings(s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Settings())
}

func (h *handler) getPlacement(w http.ResponseWriter, _ *http.Request) {
	resp := placementResponse{Completed: h.placement.TestCompleted()}
	if r, ok := h.placement.TestResult(); ok {
		resp.Result = &r
	}
	writeJSON(w, http.StatusOK, resp)
}

// putPlacement records a placement score and switches to the settings it
// recommends. A custom prompt is kept.
func (h *handler) putPlacement(w http.ResponseWriter, r *http.Request) {
	var req placementRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	difficulty, speed := models.RecommendedSettings(*req.Score)
	result := models.TestResult{
		Score:                 *req.Score,
		RecommendedDifficulty: difficulty,
		RecommendedSpeed:      speed,
		CompletedAt:           time.Now().UTC(),
	}
	if err := h.placement.SaveTestResult(result); err != nil {
		writeError(w, err)
		return
	}

	s := h.ctrl.Settings()
	s.Difficulty, s.Speed = difficulty, speed
	if err := h.ctrl.UpdateSettings(s); err != nil {
		writeError(w, err)
		return
	}
	s = h.ctrl.Settings()
	writeJSON(w, http.StatusOK, placementResponse{Completed: true, Result: &result, Settings: &s})
}

// decode reads and validates a JSON body. An empty body is accepted when
// optional is set.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return false
		}
	}
	if err := h.validator.Validate(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, turn.ErrSpeaking), errors.Is(err, turn.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrMicrophoneUnavailable):
		return http.StatusForbidden
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, schema.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, turn.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
