package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"visitor-insights/internal/analysis"
	"visitor-insights/internal/models"
	"visitor-insights/internal/util"
)

var (
	ErrMissingQuestion = errors.New("question is required")
	ErrMissingAnswer   = errors.New("answer is required")
	ErrNoEvents        = errors.New("event collection is empty")
)

// AnalysisHandler serves the AI analysis endpoints.
type AnalysisHandler struct {
	orchestrator *analysis.Orchestrator
	followups    *analysis.FollowupGenerator
	logger       *zap.Logger
}

func NewAnalysisHandler(orchestrator *analysis.Orchestrator, followups *analysis.FollowupGenerator, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		orchestrator: orchestrator,
		followups:    followups,
		logger:       logger,
	}
}

// AnalyzeRequest is the inbound analysis request. PriorContext is the
// structured carrier for conversational context; the legacy convention of
// embedding it in the question string is still accepted and split off at
// this boundary.
type AnalyzeRequest struct {
	Question     string                       `json:"question"`
	Events       []models.IdentificationEvent `json:"events"`
	PriorContext string                       `json:"prior_context,omitempty"`
}

// FollowupRequest asks for suggested next questions after an answer.
type FollowupRequest struct {
	Answer string                       `json:"answer"`
	Events []models.IdentificationEvent `json:"events"`
	Deeper bool                         `json:"deeper,omitempty"`
}

type FollowupResponse struct {
	Questions []string `json:"questions"`
}

// Analyze handles POST /ai/analyze. Malformed requests are the only hard
// errors; everything past validation resolves to a best-effort answer.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		respondWithError(w, http.StatusBadRequest, ErrMissingQuestion, "Question must not be empty")
		return
	}
	if len(req.Events) == 0 {
		respondWithError(w, http.StatusBadRequest, ErrNoEvents, "No events to analyze")
		return
	}

	// Backward-compat adapter for clients that smuggle the previous answer
	// inside the question string.
	if req.PriorContext == "" {
		req.Question, req.PriorContext = splitEmbeddedContext(req.Question)
	}

	for i := range req.Events {
		req.Events[i].Normalize()
	}

	result := h.orchestrator.Analyze(ctx, req.Events, req.Question, req.PriorContext)

	respondWithJSON(w, http.StatusOK, successResponse(result, "Analysis completed"))
	h.logger.Debug("Analysis served",
		util.String("provider", result.ProviderUsed),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Followups handles POST /ai/followups.
func (h *AnalysisHandler) Followups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FollowupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Answer) == "" {
		respondWithError(w, http.StatusBadRequest, ErrMissingAnswer, "Answer text must not be empty")
		return
	}

	questions := h.followups.Generate(ctx, req.Answer, req.Events, req.Deeper)
	respondWithJSON(w, http.StatusOK, successResponse(FollowupResponse{Questions: questions}, "Follow-ups generated"))
}

// Status handles GET /ai/status.
func (h *AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, successResponse(h.orchestrator.Status(), "Provider status"))
}

const (
	embeddedContextPrefix = `Previous answer: "`
	embeddedContextSep    = `" New question: `
)

// splitEmbeddedContext parses the legacy quoted-prefix convention:
//
//	Previous answer: "<answer>" New question: <question>
//
// Questions not matching the convention pass through untouched.
func splitEmbeddedContext(question string) (string, string) {
	if !strings.HasPrefix(question, embeddedContextPrefix) {
		return question, ""
	}

	rest := question[len(embeddedContextPrefix):]
	sep := strings.LastIndex(rest, embeddedContextSep)
	if sep == -1 {
		return question, ""
	}

	prior := rest[:sep]
	actual := strings.TrimSpace(rest[sep+len(embeddedContextSep):])
	if actual == "" {
		return question, ""
	}

	return actual, prior
}
