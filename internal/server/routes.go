package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/ledger"
	"github.com/piwi3910/catweave/internal/lifecycle"
	"github.com/piwi3910/catweave/internal/models"
	"github.com/piwi3910/catweave/internal/observability"
	"github.com/piwi3910/catweave/internal/refcheck"
	"github.com/piwi3910/catweave/internal/storage"
	"github.com/piwi3910/catweave/internal/vocab"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health and metrics endpoints
	s.router.GET("/health", gin.WrapF(s.healthCheck.HealthHandler()))
	s.router.GET("/ready", gin.WrapF(s.healthCheck.ReadinessHandler()))
	s.router.GET("/live", gin.WrapF(observability.LivenessHandler()))

	if s.config.Observability.Metrics.Enabled {
		s.router.GET(s.config.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/v1")

	resources := v1.Group("/resources/:kind")
	{
		resources.POST("", s.handleRegister)
		resources.GET("", s.handleList)
		resources.POST("/validate", s.handleValidate)

		resources.GET("/:id", s.handleGet)
		resources.PUT("/:id", s.handleUpdate)
		resources.DELETE("/:id", s.handleDelete)

		resources.POST("/:id/verify", s.handleVerify)
		resources.POST("/:id/activate", s.handleActivate)
		resources.POST("/:id/suspend", s.handleSuspend)
		resources.POST("/:id/audit", s.handleAudit)

		resources.POST("/:id/publish", s.handlePublishMirror)
		resources.DELETE("/:id/publish", s.handleRetireMirror)
	}

	if s.sweepRunner != nil {
		v1.POST("/sweeps/run", s.handleRunSweeps)
	}

	if s.vocabStore != nil {
		vocabularies := v1.Group("/vocabularies")
		{
			vocabularies.GET("", s.handleListVocabularies)
			vocabularies.GET("/:id", s.handleGetVocabulary)
			vocabularies.PUT("/:id", s.handleUpsertVocabulary)
			vocabularies.DELETE("/:id", s.handleDeleteVocabulary)
		}
	}
}

// kindParam extracts and validates the resource kind from the URL.
func kindParam(c *gin.Context) (models.Kind, bool) {
	kind := models.Kind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown resource kind: " + c.Param("kind")})
		return "", false
	}
	return kind, true
}

// handleError maps domain errors onto HTTP status codes.
func (s *Server) handleError(c *gin.Context, err error) {
	var verr *refcheck.ValidationError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNoActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPublishedImmutable),
		errors.Is(err, lifecycle.ErrNotPending),
		errors.Is(err, lifecycle.ErrCatalogueSuspended),
		errors.Is(err, lifecycle.ErrProviderSuspended),
		errors.Is(err, lifecycle.ErrDeletePending),
		errors.Is(err, lifecycle.ErrDeletePublished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnknownKind),
		errors.Is(err, lifecycle.ErrUnknownVerdict),
		errors.Is(err, lifecycle.ErrInvalidAuditAction),
		errors.Is(err, storage.ErrInvalidID),
		errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// decodePayloadBody reads and decodes the request body as a typed payload.
func decodePayloadBody(c *gin.Context, kind models.Kind) (models.Identified, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}

	payload, err := models.DecodePayload(kind, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return payload, true
}

// handleRegister creates a pending resource from the request payload.
func (s *Server) handleRegister(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	payload, ok := decodePayloadBody(c, kind)
	if !ok {
		return
	}

	env, err := s.guard.Register(c.Request.Context(), kind, payload)
	if err != nil {
		observability.RecordTransition("register", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("register", string(kind), "applied")
	c.JSON(http.StatusCreated, env)
}

// handleList lists envelopes of a kind, optionally filtered by status.
func (s *Server) handleList(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var (
		envs []*models.Envelope
		err  error
	)
	if status := c.Query("status"); status != "" {
		envs, err = s.store.ListByStatus(c.Request.Context(), kind, status)
	} else {
		envs, err = s.store.List(c.Request.Context(), kind)
	}
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": envs, "total": len(envs)})
}

// handleValidate runs reference validation on a payload without storing it.
func (s *Server) handleValidate(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	payload, ok := decodePayloadBody(c, kind)
	if !ok {
		return
	}

	env, err := models.NewEnvelope(kind, payload)
	if err != nil {
		s.handleError(c, err)
		return
	}

	if err := s.validator.Validate(c.Request.Context(), env); err != nil {
		observability.RecordReferenceValidation(string(kind), "failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "error": err.Error()})
		return
	}

	observability.RecordReferenceValidation(string(kind), "passed")
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// handleGet returns a single envelope.
func (s *Server) handleGet(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	env, err := s.store.Get(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, env)
}

// handleUpdate replaces an envelope's payload.
func (s *Server) handleUpdate(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	payload, ok := decodePayloadBody(c, kind)
	if !ok {
		return
	}

	env, err := s.guard.Update(c.Request.Context(), kind, c.Param("id"), payload)
	if err != nil {
		observability.RecordTransition("update", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("update", string(kind), "applied")
	c.JSON(http.StatusOK, env)
}

// handleDelete removes an envelope, honouring the deletion guards.
func (s *Server) handleDelete(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	if err := s.guard.Delete(c.Request.Context(), kind, c.Param("id")); err != nil {
		observability.RecordTransition("delete", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("delete", string(kind), "applied")
	c.Status(http.StatusNoContent)
}

// verifyRequest is the body of a verification call.
type verifyRequest struct {
	Status string `json:"status" binding:"required"`
	Active bool   `json:"active"`
}

// handleVerify settles a pending resource's review.
func (s *Server) handleVerify(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	env, err := s.guard.Verify(c.Request.Context(), kind, c.Param("id"), req.Status, req.Active)
	if err != nil {
		observability.RecordTransition("verify", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("verify", string(kind), "applied")
	c.JSON(http.StatusOK, env)
}

// activateRequest is the body of an activation toggle.
type activateRequest struct {
	Active bool `json:"active"`
}

// handleActivate toggles an envelope's activation flag.
func (s *Server) handleActivate(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	env, err := s.guard.Publish(c.Request.Context(), kind, c.Param("id"), req.Active)
	if err != nil {
		observability.RecordTransition("activate", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("activate", string(kind), "applied")
	c.JSON(http.StatusOK, env)
}

// suspendRequest is the body of a suspension toggle.
type suspendRequest struct {
	Suspended bool `json:"suspended"`
}

// handleSuspend sets or clears an envelope's suspension flag.
func (s *Server) handleSuspend(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	env, err := s.guard.Suspend(c.Request.Context(), kind, c.Param("id"), req.Suspended)
	if err != nil {
		observability.RecordTransition("suspend", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("suspend", string(kind), "applied")
	c.JSON(http.StatusOK, env)
}

// auditRequest is the body of an audit verdict.
type auditRequest struct {
	Action  string `json:"action" binding:"required"`
	Comment string `json:"comment"`
}

// handleAudit records an auditor's verdict.
func (s *Server) handleAudit(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	env, err := s.guard.Audit(c.Request.Context(), kind, c.Param("id"), req.Comment, ledger.ActionType(req.Action))
	if err != nil {
		observability.RecordTransition("audit", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("audit", string(kind), "applied")
	c.JSON(http.StatusOK, gin.H{
		"envelope":   env,
		"auditState": env.AuditState(),
	})
}

// handlePublishMirror creates the public instance of a canonical envelope.
func (s *Server) handlePublishMirror(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	mirror, err := s.guard.PublishMirror(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		observability.RecordTransition("publish_mirror", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("publish_mirror", string(kind), "applied")
	c.JSON(http.StatusCreated, mirror)
}

// handleRetireMirror removes the public instance of a canonical envelope.
func (s *Server) handleRetireMirror(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	if err := s.guard.RetireMirror(c.Request.Context(), kind, c.Param("id")); err != nil {
		observability.RecordTransition("retire_mirror", string(kind), "rejected")
		s.handleError(c, err)
		return
	}

	observability.RecordTransition("retire_mirror", string(kind), "applied")
	c.Status(http.StatusNoContent)
}

// handleRunSweeps triggers an out-of-schedule run of all sweeps.
func (s *Server) handleRunSweeps(c *gin.Context) {
	s.sweepRunner.RunAll(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{"status": "sweeps executed"})
}

// handleListVocabularies lists all vocabulary entries, optionally filtered
// by parent.
func (s *Server) handleListVocabularies(c *gin.Context) {
	var (
		entries []*vocab.Vocabulary
		err     error
	)
	if parent := c.Query("parent"); parent != "" {
		entries, err = s.vocabStore.Children(c.Request.Context(), parent)
	} else {
		entries, err = s.vocabStore.List(c.Request.Context())
	}
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": entries, "total": len(entries)})
}

// handleGetVocabulary returns a single vocabulary entry.
func (s *Server) handleGetVocabulary(c *gin.Context) {
	v, err := s.vocabStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, vocab.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

// handleUpsertVocabulary creates or replaces a vocabulary entry.
func (s *Server) handleUpsertVocabulary(c *gin.Context) {
	var v vocab.Vocabulary
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	v.ID = c.Param("id")

	if err := s.vocabStore.Upsert(c.Request.Context(), &v); err != nil {
		if errors.Is(err, vocab.ErrInvalidID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

// handleDeleteVocabulary removes a vocabulary entry.
func (s *Server) handleDeleteVocabulary(c *gin.Context) {
	if err := s.vocabStore.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, vocab.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
