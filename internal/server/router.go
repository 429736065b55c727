package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/ticket-survey/internal/auth"
	"github.com/MarcoPoloResearchLab/ticket-survey/internal/survey"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey  = "survey_user_id"
	claimsContextKey  = "survey_session_claims"
	formTokenHeader   = "X-Form-Token"
	corsPreflightTTL  = 12 * time.Hour
	wildcardOrigin    = "*"
	errorInvalidInput = "invalid_request"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingFormTokens       = errors.New("form token dependency required")
	errMissingRespondents      = errors.New("respondent resolver dependency required")
	errMissingSurveyService    = errors.New("survey service dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type FormTokenManager interface {
	Issue(ctx context.Context, subject, action string) (string, int64, error)
	Redeem(ctx context.Context, token, subject, action string) error
}

type RespondentResolver interface {
	ResolveUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	FormTokens       FormTokenManager
	Respondents      RespondentResolver
	SurveyService    *survey.Service
	Logger           *zap.Logger
	AllowedOrigins   []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.FormTokens == nil {
		return nil, errMissingFormTokens
	}
	if deps.Respondents == nil {
		return nil, errMissingRespondents
	}
	if deps.SurveyService == nil {
		return nil, errMissingSurveyService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:    deps.SessionValidator,
		formTokens:  deps.FormTokens,
		respondents: deps.Respondents,
		survey:      deps.SurveyService,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)

	respondent := router.Group("/survey")
	respondent.Use(handler.authorizeRequest)
	respondent.GET("/form", handler.handleRenderForm)
	respondent.POST("/submissions", handler.handleSubmit)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeRequest, handler.requireAdmin)
	admin.GET("/form-token", handler.handleIssueAdminToken)
	admin.GET("/questions", handler.handleListQuestions)
	admin.GET("/submissions", handler.handleListSubmissions)
	admin.GET("/results", handler.handleResults)
	admin.GET("/settings", handler.handleGetSettings)

	mutations := admin.Group("")
	mutations.Use(handler.requireFormToken)
	mutations.POST("/questions", handler.handleAddQuestion)
	mutations.PUT("/questions/:id", handler.handleUpdateQuestion)
	mutations.DELETE("/questions/:id", handler.handleDeleteQuestion)
	mutations.POST("/questions/reindex", handler.handleReindexQuestions)
	mutations.POST("/submissions/delete", handler.handleDeleteSubmissions)
	mutations.PUT("/settings", handler.handleSaveSettings)

	return router, nil
}

type httpHandler struct {
	sessions    SessionValidator
	formTokens  FormTokenManager
	respondents RespondentResolver
	survey      *survey.Service
	logger      *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", formTokenHeader},
		AllowCredentials: true,
		MaxAge:           corsPreflightTTL,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == wildcardOrigin {
			origins = nil
			break
		}
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		// credentials forbid a literal "*", so every origin is echoed back instead.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			h.logger.Debug("session missing", zap.String("path", c.FullPath()))
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.respondents.ResolveUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("respondent resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(claimsContextKey, claims)
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok || !claims.HasRole(auth.RoleAdmin) {
		h.logger.Warn("admin access denied", zap.String("user_id", c.GetString(userIDContextKey)))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

// requireFormToken consumes the single-use admin token before any handler runs.
func (h *httpHandler) requireFormToken(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if err := h.formTokens.Redeem(c.Request.Context(), c.GetHeader(formTokenHeader), userID, auth.ActionAdminMutation); err != nil {
		if !isFormTokenRejection(err) {
			h.logger.Error("form token redemption failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "form_token_unavailable"})
			return
		}
		h.logger.Warn("form token rejected",
			zap.String("user_id", userID),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid_form_token"})
		return
	}
	c.Next()
}

func isFormTokenRejection(err error) bool {
	return errors.Is(err, auth.ErrMissingFormToken) ||
		errors.Is(err, auth.ErrInvalidFormToken) ||
		errors.Is(err, auth.ErrFormTokenReplayed)
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

// respondServiceError maps survey error kinds onto HTTP status codes.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal_error"
	switch {
	case errors.Is(err, survey.ErrInvalidType):
		status, message = http.StatusBadRequest, "invalid_type"
	case errors.Is(err, survey.ErrValidation):
		status, message = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, survey.ErrNotFound):
		status, message = http.StatusNotFound, "not_found"
	}

	code := message
	var serviceErr *survey.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message, "code": code})
}
