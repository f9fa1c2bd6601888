// Package api contains the HTTP handlers for the signature workflow
// engine. Routing, authentication, and sessions live in the upstream
// gateway; handlers read the already-authenticated caller id from the
// X-User-ID header.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"signflow/backend/internal/services"
	"signflow/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Svc *services.SignatureService
}

// NewServer creates a new Server.
func NewServer(svc *services.SignatureService) *Server {
	return &Server{Svc: svc}
}

// RegisterHandlers mounts the engine's public operations on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/requests", s.CreateRequest)
	g.GET("/requests/:id", s.GetRequest)
	g.POST("/requests/:id/sign", s.Sign)
	g.POST("/requests/:id/notarize", s.Notarize)
	g.POST("/requests/:id/cancel", s.Cancel)
	g.GET("/requests/:id/validate", s.Validate)
	g.GET("/requests/:id/audit-trail", s.AuditTrail)
	g.GET("/workflows/:id", s.GetWorkflow)
}

func callerID(c echo.Context) (string, error) {
	id := c.Request().Header.Get("X-User-ID")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing X-User-ID header")
	}
	return id, nil
}

// errorResponse maps engine error kinds to HTTP statuses.
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch models.KindOf(err) {
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindPermissionDenied:
		status = http.StatusForbidden
	case models.KindInvalidInput:
		status = http.StatusBadRequest
	case models.KindStateConflict:
		status = http.StatusConflict
	case models.KindDependencyFailure:
		status = http.StatusBadGateway
	}
	return echo.NewHTTPError(status, err.Error())
}

// CreateRequestBody is the payload of a create call.
type CreateRequestBody struct {
	DocumentID    string                   `json:"document_id"`
	Signers       []models.Signer          `json:"signers"`
	Title         string                   `json:"title"`
	Message       *string                  `json:"message,omitempty"`
	DueDate       *time.Time               `json:"due_date,omitempty"`
	Reminders     *models.ReminderSettings `json:"reminders,omitempty"`
	SignatureType string                   `json:"signature_type"`
}

// CreateRequest creates a signing workflow.
// (POST /api/v1/requests)
func (s *Server) CreateRequest(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var body CreateRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	summary, err := s.Svc.CreateSignatureRequest(c.Request().Context(), services.CreateWorkflowInput{
		DocumentID:    body.DocumentID,
		RequestedBy:   caller,
		Signers:       body.Signers,
		Title:         body.Title,
		Message:       body.Message,
		DueDate:       body.DueDate,
		Reminders:     body.Reminders,
		SignatureType: body.SignatureType,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, summary)
}

// SignBody is the payload of a sign call.
type SignBody struct {
	Signature   models.SignatureData `json:"signature"`
	Comments    *string              `json:"comments,omitempty"`
	Attachments []models.Attachment  `json:"attachments,omitempty"`
}

// Sign executes one signer's sign operation.
// (POST /api/v1/requests/:id/sign)
func (s *Server) Sign(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var body SignBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if body.Signature.IPAddress == "" {
		body.Signature.IPAddress = c.RealIP()
	}
	if body.Signature.UserAgent == "" {
		body.Signature.UserAgent = c.Request().UserAgent()
	}

	req, err := s.Svc.SignDocument(c.Request().Context(), services.SignInput{
		RequestID:   c.Param("id"),
		SignerID:    caller,
		Data:        body.Signature,
		Comments:    body.Comments,
		Attachments: body.Attachments,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// NotarizeBody is the payload of a notarize call.
type NotarizeBody struct {
	Seal       string   `json:"seal"`
	Commission string   `json:"commission"`
	Witnesses  []string `json:"witnesses,omitempty"`
}

// Notarize attaches notarial metadata to a request.
// (POST /api/v1/requests/:id/notarize)
func (s *Server) Notarize(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var body NotarizeBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	req, err := s.Svc.NotarizeDocument(c.Request().Context(), services.NotarizeInput{
		RequestID:  c.Param("id"),
		NotaryID:   caller,
		Seal:       body.Seal,
		Commission: body.Commission,
		Witnesses:  body.Witnesses,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// CancelBody is the payload of a cancel call.
type CancelBody struct {
	Reason string `json:"reason"`
}

// Cancel cancels the workflow a request belongs to.
// (POST /api/v1/requests/:id/cancel)
func (s *Server) Cancel(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var body CancelBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	if err := s.Svc.CancelSignatureRequest(c.Request().Context(), c.Param("id"), caller, body.Reason); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetRequest returns one signature request.
// (GET /api/v1/requests/:id)
func (s *Server) GetRequest(c echo.Context) error {
	req, err := s.Svc.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// Validate re-verifies a stored signature.
// (GET /api/v1/requests/:id/validate)
func (s *Server) Validate(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	result, err := s.Svc.ValidateSignature(c.Request().Context(), c.Param("id"), caller)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// AuditTrail returns the compliance report for a request's workflow.
// (GET /api/v1/requests/:id/audit-trail)
func (s *Server) AuditTrail(c echo.Context) error {
	trail, err := s.Svc.GenerateAuditTrail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, trail)
}

// GetWorkflow returns a workflow summary.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	summary, err := s.Svc.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}
