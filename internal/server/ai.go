package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mkulima/internal/domain"
	"mkulima/internal/integrations/llm"
	"mkulima/internal/storage/sqlite"
)

const (
	msgNoProfitAnalysis = "No profit analysis found. Calculate profit first."
	msgLLMUnavailable   = "AI assistant is not configured."
	msgLLMFailed        = "AI assistant failed to respond. Try again later."

	defaultReportLimit = 20
	maxReportLimit     = 100
)

type shareRequest struct {
	Insight string `json:"insight"`
}

type chatRequest struct {
	Message string            `json:"message" binding:"required"`
	History []domain.ChatTurn `json:"history"`
}

// loadAdvisorySnapshot returns the slot contents when both a prediction and a
// profit analysis are present. It writes the error response otherwise.
func (s *Server) loadAdvisorySnapshot(c *gin.Context) (domain.Snapshot, bool) {
	session := sessionKey(c)
	snap, ok, err := s.deps.Cache.Load(c.Request.Context(), session)
	if err != nil {
		log.Printf("insight cache load error session=%s: %v", session, err)
		abortError(c, http.StatusInternalServerError, "Could not read the last prediction.")
		return domain.Snapshot{}, false
	}
	if !ok || snap.Latest == nil {
		abortError(c, http.StatusConflict, msgNoPrediction)
		return domain.Snapshot{}, false
	}
	if snap.ProfitAnalysis == nil {
		abortError(c, http.StatusConflict, msgNoProfitAnalysis)
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) insight(c *gin.Context) {
	if !s.deps.Generator.Configured() {
		abortError(c, http.StatusServiceUnavailable, msgLLMUnavailable)
		return
	}
	snap, ok := s.loadAdvisorySnapshot(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if strings.EqualFold(c.Query("format"), "json") {
		structured, err := s.deps.Generator.StructuredInsight(ctx, snap)
		if err != nil {
			s.llmError(c, "structured insight", err)
			return
		}
		c.JSON(http.StatusOK, structured)
		return
	}

	text, err := s.deps.Generator.Insight(ctx, snap)
	if err != nil {
		s.llmError(c, "insight", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"Insights": text})
}

// shareInsight posts an insight to the team channel. The body may carry the
// insight text already shown to the user, otherwise a fresh one is generated.
func (s *Server) shareInsight(c *gin.Context) {
	if s.deps.Sharer == nil {
		abortError(c, http.StatusServiceUnavailable, "Sharing is not configured.")
		return
	}
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	snap, ok := s.loadAdvisorySnapshot(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	text := strings.TrimSpace(req.Insight)
	if text == "" {
		if !s.deps.Generator.Configured() {
			abortError(c, http.StatusServiceUnavailable, msgLLMUnavailable)
			return
		}
		generated, err := s.deps.Generator.Insight(ctx, snap)
		if err != nil {
			s.llmError(c, "share insight", err)
			return
		}
		text = generated
	}

	ts, err := s.deps.Sharer.ShareInsight(ctx, snap, text)
	if err != nil {
		log.Printf("share insight error county=%q crop=%s: %v", snap.Latest.County, snap.ProfitAnalysis.Crop, err)
		abortError(c, http.StatusBadGateway, "Could not share the insight.")
		return
	}
	log.Printf("share insight county=%q crop=%s ts=%s", snap.Latest.County, snap.ProfitAnalysis.Crop, ts)
	c.JSON(http.StatusOK, gin.H{"shared": true, "ts": ts})
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		abortError(c, http.StatusBadRequest, "Invalid request: message is required.")
		return
	}
	if !s.deps.Generator.Configured() {
		abortError(c, http.StatusServiceUnavailable, msgLLMUnavailable)
		return
	}

	reply, messages, err := s.deps.Generator.Chat(c.Request.Context(), req.History, req.Message)
	if err != nil {
		s.llmError(c, "chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "messages": messages})
}

func (s *Server) llmError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		abortError(c, http.StatusServiceUnavailable, msgLLMUnavailable)
	case errors.Is(err, llm.ErrMissingPrediction):
		abortError(c, http.StatusConflict, msgNoPrediction)
	case errors.Is(err, llm.ErrMissingProfitAnalysis):
		abortError(c, http.StatusConflict, msgNoProfitAnalysis)
	default:
		log.Printf("llm %s error session=%s: %v", op, sessionKey(c), err)
		abortError(c, http.StatusBadGateway, msgLLMFailed)
	}
}

// reports lists stored predictions for the caller's session, or for every
// session with ?scope=all.
func (s *Server) reports(c *gin.Context) {
	if s.deps.DB == nil {
		abortError(c, http.StatusServiceUnavailable, "Prediction history is not enabled.")
		return
	}
	limit := defaultReportLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortError(c, http.StatusBadRequest, "limit must be a positive integer.")
			return
		}
		limit = min(n, maxReportLimit)
	}
	session := sessionKey(c)
	if c.Query("scope") == "all" {
		session = ""
	}

	entries, err := sqlite.ListReports(s.deps.DB, session, limit)
	if err != nil {
		log.Printf("reports list error: %v", err)
		abortError(c, http.StatusInternalServerError, "Could not load reports.")
		return
	}
	counts, err := sqlite.CountsByCounty(s.deps.DB)
	if err != nil {
		log.Printf("reports county counts error: %v", err)
		abortError(c, http.StatusInternalServerError, "Could not load reports.")
		return
	}
	if entries == nil {
		entries = []domain.ReportEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": entries, "county_counts": counts})
}
