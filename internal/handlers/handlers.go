package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/mpox-check/internal/form"
	"github.com/example/mpox-check/internal/imageprocessor"
	"github.com/example/mpox-check/internal/sessiontoken"
	"github.com/example/mpox-check/internal/usecase"
	"github.com/example/mpox-check/internal/wizard"
)

// MaxUploadSize is the default limit on a multipart request body.
const MaxUploadSize = 10 << 20

// Handler serves the wizard over HTTP.
type Handler struct {
	uc             *usecase.WizardUseCase
	issuer         *sessiontoken.Issuer
	logger         *zap.Logger
	maxUploadBytes int64
}

// NewHandler builds a handler. A non-positive maxUploadBytes selects MaxUploadSize.
func NewHandler(uc *usecase.WizardUseCase, issuer *sessiontoken.Issuer, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = MaxUploadSize
	}
	return &Handler{
		uc:             uc,
		issuer:         issuer,
		logger:         logger.Named("handlers"),
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.health)
	router.POST("/sessions", h.createSession)
	router.GET("/metrics/summary", h.metricsSummary)

	protected := router.Group("/wizard")
	protected.Use(h.issuer.Middleware())
	protected.GET("", h.view)
	protected.DELETE("", h.endSession)
	protected.POST("/start", h.start)
	protected.POST("/personal-info", h.submitPersonalInfo)
	protected.POST("/symptoms", h.submitSymptoms)
	protected.GET("/result", h.result)
	protected.POST("/result/image", h.replaceImage)
	protected.POST("/restart", h.restart)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"model_available": h.uc.ModelAvailable(),
	})
}

func (h *Handler) createSession(c *gin.Context) {
	view := h.uc.CreateSession()
	token, expires, err := h.issuer.Issue(view.SessionID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	h.issuer.SetCookie(c, token)
	c.JSON(http.StatusCreated, gin.H{
		"token":      token,
		"expires_at": expires,
		"view":       view,
	})
}

func (h *Handler) view(c *gin.Context) {
	view, err := h.uc.View(sessionID(c))
	h.respond(c, view, err)
}

func (h *Handler) start(c *gin.Context) {
	view, err := h.uc.Start(sessionID(c))
	h.respond(c, view, err)
}

func (h *Handler) submitPersonalInfo(c *gin.Context) {
	in := form.PersonalInfo{
		Name:  c.PostForm(form.FieldName),
		Phone: c.PostForm(form.FieldPhone),
		Place: c.PostForm(form.FieldPlace),
		Age:   parseAge(c.PostForm(form.FieldAge)),
	}
	view, res, err := h.uc.SubmitPersonalInfo(sessionID(c), in)
	if err == nil {
		err = res.Err()
	}
	h.respond(c, view, err)
}

func (h *Handler) submitSymptoms(c *gin.Context) {
	if err := h.parseMultipart(c); err != nil {
		h.fail(c, nil, err)
		return
	}

	upload, err := h.readUpload(c)
	if err != nil {
		h.fail(c, nil, err)
		return
	}

	sel := form.ParseSymptoms(c.PostFormArray(form.FieldGeneral), c.PostFormArray(form.FieldSkin))
	view, res, err := h.uc.SubmitSymptoms(sessionID(c), sel, upload)
	if err == nil {
		err = res.Err()
	}
	h.respond(c, view, err)
}

func (h *Handler) result(c *gin.Context) {
	view, err := h.uc.Result(c.Request.Context(), sessionID(c))
	h.respond(c, view, err)
}

func (h *Handler) replaceImage(c *gin.Context) {
	if err := h.parseMultipart(c); err != nil {
		h.fail(c, nil, err)
		return
	}
	upload, err := h.readUpload(c)
	if err != nil {
		h.fail(c, nil, err)
		return
	}
	if upload == nil {
		h.fail(c, nil, form.ValidateImagePresent(false).Err())
		return
	}
	view, err := h.uc.ReplaceImage(sessionID(c), upload)
	h.respond(c, view, err)
}

func (h *Handler) restart(c *gin.Context) {
	view, err := h.uc.Restart(sessionID(c))
	h.respond(c, view, err)
}

func (h *Handler) endSession(c *gin.Context) {
	if err := h.uc.EndSession(sessionID(c)); err != nil {
		h.fail(c, nil, err)
		return
	}
	h.issuer.ClearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) metricsSummary(c *gin.Context) {
	summary, err := h.uc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.fail(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) parseMultipart(c *gin.Context) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return ErrUploadTooLarge
		}
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return nil
}

// readUpload returns nil without error when the request carries no image.
func (h *Handler) readUpload(c *gin.Context) (*imageprocessor.Upload, error) {
	file, err := c.FormFile(form.FieldImage)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return imageprocessor.NewUpload(file.Filename, data)
}

func (h *Handler) respond(c *gin.Context, view wizard.View, err error) {
	if err != nil {
		h.fail(c, &view, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) fail(c *gin.Context, view *wizard.View, err error) {
	status := MapHTTPStatus(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	body := gin.H{"error": userMessage(err)}
	var validationErr *form.ValidationError
	if errors.As(err, &validationErr) {
		body["errors"] = validationErr.Fields
	}
	if view != nil && view.SessionID != "" {
		body["view"] = view
	}
	c.JSON(status, body)
}

func sessionID(c *gin.Context) string {
	id, _ := sessiontoken.SessionID(c.Request.Context())
	return id
}

// parseAge maps an empty field to 0, which validation treats as not
// provided, and anything unparsable to -1, which fails the range check.
func parseAge(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	age, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return age
}
