package interfaces

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recruitment/domain"
	"recruitment/service"
)

const maxUploadBytes = 10 << 20

// DocumentWriter stores uploaded documents.
type DocumentWriter interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
}

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(filename string, data []byte) (string, error)
}

// DeadLetterSource lists outbox events that exhausted their retries.
type DeadLetterSource interface {
	DeadLettered(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
}

// HandlerDeps groups what the HTTP layer calls into.
type HandlerDeps struct {
	Lifecycle   *service.Lifecycle
	Settings    *service.Settings
	Documents   DocumentWriter
	Extractor   TextExtractor
	DeadLetters DeadLetterSource
	Logger      *zap.Logger
}

type HTTPHandler struct {
	lifecycle   *service.Lifecycle
	settings    *service.Settings
	documents   DocumentWriter
	extractor   TextExtractor
	deadLetters DeadLetterSource
	logger      *zap.Logger
}

func NewHTTPHandler(router *gin.Engine, deps HandlerDeps) *HTTPHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &HTTPHandler{
		lifecycle:   deps.Lifecycle,
		settings:    deps.Settings,
		documents:   deps.Documents,
		extractor:   deps.Extractor,
		deadLetters: deps.DeadLetters,
		logger:      deps.Logger,
	}

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.POST("/documents", h.UploadDocument)

	apps := router.Group("/applications")
	apps.POST("", h.Submit)
	apps.GET("/:ref", h.GetApplication)
	apps.POST("/:ref/transitions", h.Transition)
	apps.POST("/:ref/withdraw", h.Withdraw)
	apps.POST("/:ref/interview", h.AssignInterview)
	apps.POST("/:ref/evaluations", h.RequestEvaluation)
	apps.GET("/:ref/evaluation", h.GetEvaluation)

	router.GET("/ai-settings", h.ListSettings)
	router.GET("/ai-settings/:department", h.GetSettings)
	router.PUT("/ai-settings/:department", h.PutSettings)

	router.GET("/outbox/dead-letters", h.DeadLetters)
	return h
}

// UploadDocument accepts a resume or cover letter, extracts its text and stores it.
func (h *HTTPHandler) UploadDocument(c *gin.Context) {
	candidateID := strings.TrimSpace(c.PostForm("candidate_id"))
	if candidateID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "candidate_id is required"})
		return
	}
	docType := domain.DocumentType(strings.ToUpper(strings.TrimSpace(c.PostForm("type"))))
	if docType != domain.DocumentResume && docType != domain.DocumentCoverLetter {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be RESUME or COVER_LETTER"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is larger than 10MB"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	text, err := h.extractor.Extract(header.Filename, data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract text: " + err.Error()})
		return
	}

	doc := &domain.Document{
		CandidateID: candidateID,
		Type:        docType,
		Filename:    header.Filename,
		Text:        text,
	}
	if err := h.documents.CreateDocument(c.Request.Context(), doc); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document_id": doc.ID,
		"type":        doc.Type,
		"characters":  len([]rune(text)),
	})
}

type submitRequest struct {
	CandidateID           string `json:"candidate_id" binding:"required"`
	JobPostingID          uint   `json:"job_posting_id" binding:"required"`
	ResumeDocumentID      uint   `json:"resume_document_id" binding:"required"`
	CoverLetterDocumentID *uint  `json:"cover_letter_document_id"`
}

// Submit creates an application. Evaluation runs asynchronously afterwards.
func (h *HTTPHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.lifecycle.Submit(c.Request.Context(), service.SubmitRequest{
		CandidateID:           req.CandidateID,
		JobPostingID:          req.JobPostingID,
		ResumeDocumentID:      req.ResumeDocumentID,
		CoverLetterDocumentID: req.CoverLetterDocumentID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toApplicationResponse(app))
}

func (h *HTTPHandler) GetApplication(c *gin.Context) {
	app, err := h.lifecycle.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app))
}

type transitionRequest struct {
	Status    string `json:"status" binding:"required"`
	ChangedBy string `json:"changed_by" binding:"required"`
	Reason    string `json:"reason"`
}

func (h *HTTPHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := domain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	app, err := h.lifecycle.Transition(c.Request.Context(), c.Param("ref"), target, req.ChangedBy, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app))
}

type withdrawRequest struct {
	ChangedBy string `json:"changed_by" binding:"required"`
	Reason    string `json:"reason"`
}

func (h *HTTPHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.lifecycle.Withdraw(c.Request.Context(), c.Param("ref"), req.ChangedBy, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app))
}

func (h *HTTPHandler) AssignInterview(c *gin.Context) {
	var req struct {
		InterviewID string `json:"interview_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.lifecycle.AssignInterview(c.Request.Context(), c.Param("ref"), req.InterviewID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app))
}

// RequestEvaluation queues a new AI evaluation, e.g. after a failed one was reverted.
func (h *HTTPHandler) RequestEvaluation(c *gin.Context) {
	var req struct {
		RequestedBy string `json:"requested_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.lifecycle.RequestEvaluation(c.Request.Context(), c.Param("ref"), req.RequestedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"reference_code": app.ReferenceCode, "status": app.Status})
}

func (h *HTTPHandler) GetEvaluation(c *gin.Context) {
	eval, err := h.lifecycle.GetEvaluation(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"application_id":          eval.ApplicationID,
		"overall_score":           eval.OverallScore,
		"category_scores":         eval.CategoryScores,
		"recommendation":          eval.Recommendation,
		"justification":           eval.Justification,
		"strengths":               eval.Strengths,
		"weaknesses":              eval.Weaknesses,
		"ai_model":                eval.ModelUsed,
		"exceeded_auto_threshold": eval.ExceededAutoThreshold,
		"evaluated_at":            eval.EvaluatedAt,
	})
}

type settingsRequest struct {
	AutoAcceptThreshold *float64 `json:"auto_accept_threshold" binding:"required"`
	AutoRejectThreshold *float64 `json:"auto_reject_threshold" binding:"required"`
	ReviewThreshold     *float64 `json:"review_threshold" binding:"required"`
	IsActive            *bool    `json:"is_active"`
	IsAutoAcceptEnabled bool     `json:"is_auto_accept_enabled"`
	IsAutoRejectEnabled bool     `json:"is_auto_reject_enabled"`
	IsSelfCalibrating   bool     `json:"is_self_calibrating"`
	UpdatedBy           string   `json:"updated_by" binding:"required"`
}

func (h *HTTPHandler) PutSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	settings, err := h.settings.Upsert(c.Request.Context(), service.SettingsInput{
		Department:          c.Param("department"),
		AutoAcceptThreshold: *req.AutoAcceptThreshold,
		AutoRejectThreshold: *req.AutoRejectThreshold,
		ReviewThreshold:     *req.ReviewThreshold,
		IsActive:            active,
		IsAutoAcceptEnabled: req.IsAutoAcceptEnabled,
		IsAutoRejectEnabled: req.IsAutoRejectEnabled,
		IsSelfCalibrating:   req.IsSelfCalibrating,
		UpdatedBy:           req.UpdatedBy,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettingsResponse(*settings))
}

func (h *HTTPHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context(), c.Param("department"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettingsResponse(*settings))
}

func (h *HTTPHandler) ListSettings(c *gin.Context) {
	all, err := h.settings.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]settingsResponse, 0, len(all))
	for _, s := range all {
		out = append(out, toSettingsResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

func (h *HTTPHandler) DeadLetters(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	events, err := h.deadLetters.DeadLettered(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(events))
	for _, evt := range events {
		out = append(out, gin.H{
			"id":             evt.ID,
			"event_type":     evt.EventType,
			"aggregate_type": evt.AggregateType,
			"aggregate_id":   evt.AggregateID,
			"retry_count":    evt.RetryCount,
			"error_message":  evt.ErrorMessage,
			"creation_time":  evt.CreationTime,
			"processed_at":   evt.ProcessedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// writeError maps domain errors onto HTTP status codes.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		transition *domain.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "from": transition.From, "to": transition.To})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "the application was modified concurrently, retry the request"})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsDownstream(err):
		h.logger.Warn("downstream unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type historyResponse struct {
	FromStatus domain.Status `json:"from_status"`
	ToStatus   domain.Status `json:"to_status"`
	ChangedBy  string        `json:"changed_by"`
	Reason     string        `json:"reason,omitempty"`
	ChangedAt  time.Time     `json:"changed_at"`
}

type applicationResponse struct {
	ReferenceCode         string            `json:"reference_code"`
	CandidateID           string            `json:"candidate_id"`
	JobPostingID          uint              `json:"job_posting_id"`
	Department            string            `json:"department"`
	Status                domain.Status     `json:"status"`
	ResumeDocumentID      uint              `json:"resume_document_id"`
	CoverLetterDocumentID *uint             `json:"cover_letter_document_id,omitempty"`
	AIScore               *float64          `json:"ai_score"`
	AIProcessed           bool              `json:"ai_processed"`
	AutoDecision          bool              `json:"auto_decision"`
	IsShortlisted         bool              `json:"is_shortlisted"`
	InterviewID           *string           `json:"interview_id,omitempty"`
	SubmittedAt           time.Time         `json:"submitted_at"`
	ProcessedAt           *time.Time        `json:"processed_at"`
	LastStatusChangedAt   time.Time         `json:"last_status_changed_at"`
	LastStatusChangedBy   string            `json:"last_status_changed_by"`
	Version               int               `json:"version"`
	History               []historyResponse `json:"history"`
}

func toApplicationResponse(app *domain.Application) applicationResponse {
	history := make([]historyResponse, 0, len(app.History))
	for _, e := range app.History {
		history = append(history, historyResponse{
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			ChangedBy:  e.ChangedBy,
			Reason:     e.Reason,
			ChangedAt:  e.ChangedAt,
		})
	}
	return applicationResponse{
		ReferenceCode:         app.ReferenceCode,
		CandidateID:           app.CandidateID,
		JobPostingID:          app.JobPostingID,
		Department:            app.Department,
		Status:                app.Status,
		ResumeDocumentID:      app.ResumeDocumentID,
		CoverLetterDocumentID: app.CoverLetterDocumentID,
		AIScore:               app.AIScore,
		AIProcessed:           app.AIProcessed,
		AutoDecision:          app.AutoDecision,
		IsShortlisted:         app.IsShortlisted,
		InterviewID:           app.InterviewID,
		SubmittedAt:           app.SubmittedAt,
		ProcessedAt:           app.ProcessedAt,
		LastStatusChangedAt:   app.LastStatusChangedAt,
		LastStatusChangedBy:   app.LastStatusChangedBy,
		Version:               app.Version,
		History:               history,
	}
}

type settingsResponse struct {
	Department          string     `json:"department"`
	AutoAcceptThreshold float64    `json:"auto_accept_threshold"`
	AutoRejectThreshold float64    `json:"auto_reject_threshold"`
	ReviewThreshold     float64    `json:"review_threshold"`
	IsActive            bool       `json:"is_active"`
	IsAutoAcceptEnabled bool       `json:"is_auto_accept_enabled"`
	IsAutoRejectEnabled bool       `json:"is_auto_reject_enabled"`
	IsSelfCalibrating   bool       `json:"is_self_calibrating"`
	LastCalibrationDate *time.Time `json:"last_calibration_date"`
	UpdatedBy           string     `json:"updated_by"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toSettingsResponse(s domain.AISettings) settingsResponse {
	return settingsResponse{
		Department:          s.Department,
		AutoAcceptThreshold: s.AutoAcceptThreshold,
		AutoRejectThreshold: s.AutoRejectThreshold,
		ReviewThreshold:     s.ReviewThreshold,
		IsActive:            s.IsActive,
		IsAutoAcceptEnabled: s.IsAutoAcceptEnabled,
		IsAutoRejectEnabled: s.IsAutoRejectEnabled,
		IsSelfCalibrating:   s.IsSelfCalibrating,
		LastCalibrationDate: s.LastCalibrationDate,
		UpdatedBy:           s.UpdatedBy,
		UpdatedAt:           s.UpdatedAt,
	}
}
