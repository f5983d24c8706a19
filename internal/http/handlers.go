package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"medvise-backend/internal/core"
	"medvise-backend/internal/extract"
	"medvise-backend/internal/patient"
	"medvise-backend/internal/store"
	"medvise-backend/pkg"
)

const (
	headerSessionID = "X-Session-Id"
	ctxSessionID    = "session_id"
	notFoundDetail  = "Session not found or expired"

	// multipartSlack is the room left for multipart framing on top of the
	// upload limit.
	multipartSlack = 1 << 20
)

// registerRoutes sets up every endpoint on the router.  Stage-machine
// endpoints resolve their session from the X-Session-Id header.
func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/", handleRoot())
	r.GET("/health", handleHealth())

	r.POST("/sessions", s.handleCreateSession())
	r.GET("/sessions/:id", s.handleGetSession())

	scoped := r.Group("/", s.requireSession())
	scoped.POST("/assessment/initial", s.handleContent(s.intake.Initial))
	scoped.POST("/assessment/follow-up", s.handleContent(s.intake.FollowUp))
	scoped.POST("/assessment/expert", s.handleContent(s.intake.ExpertEvaluation))
	scoped.POST("/chat/send", s.handleChat())
	scoped.POST("/labs/analyze", s.handleLabAnalyze())
	scoped.POST("/labs/follow-up", s.handleLabFollowUp())
	scoped.POST("/labs/final", s.handleContent(s.intake.LabFinal))
	scoped.POST("/labs/upload-pdf", s.handleUpload())
}

func handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "medvise-backend"})
	}
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (s *Server) handleCreateSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.intake.CreateSession()
		c.JSON(http.StatusOK, pkg.CreateSessionResponse{SessionID: sess.ID})
	}
}

func (s *Server) handleGetSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.intake.Session(c.Param("id"))
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

// requireSession fails closed with 404 when the header is missing or names
// no live session.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerSessionID)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": notFoundDetail})
			return
		}
		if _, err := s.intake.Session(id); err != nil {
			s.fail(c, err, nil)
			c.Abort()
			return
		}
		c.Set(ctxSessionID, id)
		c.Next()
	}
}

// payloadOp is a stage-machine operation taking the raw request object.
type payloadOp func(ctx context.Context, id string, raw map[string]interface{}) (core.Reply, error)

func (s *Server) handleContent(op payloadOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, body, ok := s.readObject(c)
		if !ok {
			return
		}
		reply, err := op(c.Request.Context(), c.GetString(ctxSessionID), raw)
		if err != nil {
			s.fail(c, err, body)
			return
		}
		c.JSON(http.StatusOK, pkg.ContentResponse{Content: reply.Content})
	}
}

func (s *Server) handleChat() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pkg.ChatRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			body, _ := c.Get(gin.BodyBytesKey)
			raw, _ := body.([]byte)
			s.invalid(c, bindErrors(err), raw)
			return
		}
		reply, err := s.intake.Chat(c.Request.Context(), c.GetString(ctxSessionID), req.Message)
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, pkg.ChatResponse{Content: reply.Content, AutoExpert: reply.AutoExpert})
	}
}

func (s *Server) handleLabAnalyze() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, body, ok := s.readObject(c)
		if !ok {
			return
		}
		resp, err := s.intake.AnalyzeLabs(c.Request.Context(), c.GetString(ctxSessionID), raw)
		if err != nil {
			s.fail(c, err, body)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleLabFollowUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, body, ok := s.readObject(c)
		if !ok {
			return
		}
		resp, err := s.intake.LabFollowUp(c.Request.Context(), c.GetString(ctxSessionID), raw)
		if err != nil {
			s.fail(c, err, body)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleUpload accepts a multipart "file" field.  The request body is capped
// before the form is parsed, and the declared part size is checked before
// the content is read.
func (s *Server) handleUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := s.intake.MaxUploadBytes()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)
		fh, err := c.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				s.fail(c, fmt.Errorf("%w: request body over %d bytes", core.ErrFileTooLarge, tooBig.Limit), nil)
				return
			}
			s.invalid(c, []patient.FieldError{{Field: "file", Reason: "field required"}}, nil)
			return
		}
		if fh.Size > limit {
			s.fail(c, fmt.Errorf("%w: %d bytes, limit %d", core.ErrFileTooLarge, fh.Size, limit), nil)
			return
		}
		f, err := fh.Open()
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, limit+1))
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		resp, err := s.intake.UploadDocument(c.Request.Context(), c.GetString(ctxSessionID), fh.Filename, data)
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// readObject decodes the request body as a JSON object.  An empty body is an
// empty object.  On failure the response is already written.
func (s *Server) readObject(c *gin.Context) (map[string]interface{}, []byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, err, nil)
		return nil, nil, false
	}
	if len(body) == 0 {
		return map[string]interface{}{}, body, true
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		s.invalid(c, []patient.FieldError{{Field: "body", Reason: "must be a JSON object"}}, body)
		return nil, nil, false
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return raw, body, true
}

// fail maps an operation error onto a status code and JSON body.
func (s *Server) fail(c *gin.Context, err error, body []byte) {
	var verr *patient.ValidationError
	var uerr *core.UpstreamError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": notFoundDetail})
	case errors.As(err, &verr):
		s.invalid(c, verr.Errors, body)
	case errors.Is(err, core.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "Dosya çok büyük", "error": err.Error()})
	case errors.Is(err, extract.ErrUnsupportedFormat):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"detail": "Sadece PDF dosyaları desteklenir", "error": err.Error()})
	case errors.As(err, &uerr):
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Upstream service failure", "op": uerr.Op})
	default:
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
	}
}

// invalid writes a 422 with the structured field errors and logs the raw
// offending body.
func (s *Server) invalid(c *gin.Context, errs []patient.FieldError, body []byte) {
	s.log.Warn().
		Str("path", c.Request.URL.Path).
		Str("session_id", c.GetString(ctxSessionID)).
		Interface("errors", errs).
		Bytes("body", body).
		Msg("validation failed")
	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": errs})
}

// bindErrors turns a gin binding error into field errors.
func bindErrors(err error) []patient.FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]patient.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			reason := "invalid value"
			if fe.Tag() == "required" {
				reason = "field required"
			}
			out = append(out, patient.FieldError{Field: jsonName(fe.Field()), Reason: reason})
		}
		return out
	}
	return []patient.FieldError{{Field: "body", Reason: err.Error()}}
}

func jsonName(field string) string {
	switch field {
	case "Message":
		return "message"
	case "Mode":
		return "mode"
	}
	return field
}
