package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/goals"
	"github.com/MarcoPoloResearchLab/inkwell/internal/ids"
	"github.com/MarcoPoloResearchLab/inkwell/internal/journal"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "inkwell_user_id"

var (
	errMissingRegistry    = errors.New("store registry dependency required")
	errMissingUserService = errors.New("user service dependency required")
	errMissingTokenIssuer = errors.New("token issuer dependency required")
)

// Dependencies wires the HTTP surface to the stores behind it.
type Dependencies struct {
	Registry       *storage.Registry
	Users          *users.Service
	Tokens         *auth.TokenIssuer
	Clock          func() time.Time
	IDProvider     ids.Provider
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the journal API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler, err := newHTTPHandler(deps, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.POST("/users", handler.handleRegister)
	router.POST("/session", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.DELETE("/session", handler.handleLogout)
	protected.DELETE("/store", handler.handleDestroyStore)

	store := protected.Group("/")
	store.Use(handler.withUserStore)
	store.GET("/export", handler.handleExport)
	store.GET("/aggregate", handler.handleAggregate)

	store.GET("/entries", handler.listEntries)
	store.POST("/entries", handler.createEntry)
	store.GET("/entries/:id", handler.getEntry)
	store.PUT("/entries/:id", handler.updateEntry)
	store.DELETE("/entries/:id", handler.deleteEntry)

	store.GET("/moods", handler.listMoodLogs)
	store.POST("/moods", handler.createMoodLog)
	store.GET("/moods/:id", handler.getMoodLog)
	store.PUT("/moods/:id", handler.updateMoodLog)
	store.DELETE("/moods/:id", handler.deleteMoodLog)

	store.GET("/tags", handler.listTags)
	store.POST("/tags", handler.createTag)
	store.GET("/tags/:id", handler.getTag)
	store.PUT("/tags/:id", handler.updateTag)
	store.DELETE("/tags/:id", handler.deleteTag)

	store.GET("/reviews", handler.listReviews)
	store.POST("/reviews", handler.createReview)
	store.GET("/reviews/:id", handler.getReview)
	store.PUT("/reviews/:id", handler.updateReview)
	store.DELETE("/reviews/:id", handler.deleteReview)

	store.GET("/templates", handler.listTemplates)
	store.POST("/templates", handler.createTemplate)
	store.GET("/templates/:id", handler.getTemplate)
	store.PUT("/templates/:id", handler.updateTemplate)
	store.DELETE("/templates/:id", handler.deleteTemplate)

	store.GET("/settings", handler.listSettings)
	store.GET("/settings/week-start", handler.getWeekStart)
	store.PUT("/settings/week-start", handler.putWeekStart)

	store.GET("/goals", handler.listGoals)
	store.POST("/goals", handler.createGoal)
	store.GET("/goals/:id", handler.getGoal)
	store.PUT("/goals/:id", handler.updateGoal)
	store.DELETE("/goals/:id", handler.deleteGoal)
	store.PUT("/goals/:id/parent", handler.reparentGoal)
	store.GET("/goals/:id/hierarchy", handler.goalHierarchy)
	store.GET("/goals/:id/children", handler.goalChildren)
	store.GET("/goals/:id/trackers", handler.goalTrackers)

	store.POST("/trackers", handler.createTracker)
	store.GET("/trackers/:id", handler.getTracker)
	store.PUT("/trackers/:id", handler.updateTracker)
	store.DELETE("/trackers/:id", handler.deleteTracker)
	store.GET("/trackers/:id/entries", handler.listTrackerEntries)
	store.PUT("/trackers/:id/entries/:date", handler.recordTrackerEntry)
	store.DELETE("/tracker-entries/:id", handler.deleteTrackerEntry)

	return router, nil
}

type httpHandler struct {
	registry  *storage.Registry
	users     *users.Service
	tokens    *auth.TokenIssuer
	validator *auth.SessionValidator
	logger    *zap.Logger

	entries   *journal.EntryRepository
	moodLogs  *journal.MoodLogRepository
	tags      *journal.TagRepository
	reviews   *journal.ReviewRepository
	templates *journal.TemplateRepository
	settings  *journal.SettingsRepository
	goals     *goals.Manager
	trackers  *goals.TrackerRepository
}

func newHTTPHandler(deps Dependencies, logger *zap.Logger) (*httpHandler, error) {
	journalConfig := journal.Config{Source: deps.Registry, Clock: deps.Clock, IDProvider: deps.IDProvider, Logger: logger}
	entries, err := journal.NewEntryRepository(journalConfig)
	if err != nil {
		return nil, err
	}
	moodLogs, err := journal.NewMoodLogRepository(journalConfig)
	if err != nil {
		return nil, err
	}
	tags, err := journal.NewTagRepository(journalConfig)
	if err != nil {
		return nil, err
	}
	reviews, err := journal.NewReviewRepository(journalConfig, entries, moodLogs)
	if err != nil {
		return nil, err
	}
	templates, err := journal.NewTemplateRepository(journalConfig)
	if err != nil {
		return nil, err
	}
	settings, err := journal.NewSettingsRepository(journalConfig)
	if err != nil {
		return nil, err
	}

	goalConfig := goals.Config{Source: deps.Registry, Clock: deps.Clock, IDProvider: deps.IDProvider, Logger: logger}
	manager, err := goals.NewManager(goalConfig)
	if err != nil {
		return nil, err
	}
	trackers, err := goals.NewTrackerRepository(goalConfig, settings.WeekStartDay)
	if err != nil {
		return nil, err
	}

	return &httpHandler{
		registry:  deps.Registry,
		users:     deps.Users,
		tokens:    deps.Tokens,
		validator: deps.Tokens.Validator(),
		logger:    logger,
		entries:   entries,
		moodLogs:  moodLogs,
		tags:      tags,
		reviews:   reviews,
		templates: templates,
		settings:  settings,
		goals:     manager,
		trackers:  trackers,
	}, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredSessionToken), errors.Is(err, auth.ErrMissingSessionToken):
			h.logger.Info("token validation failed", zap.Error(err))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "session.unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

// withUserStore runs the rest of the chain as one unit of work against the caller's store.
func (h *httpHandler) withUserStore(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	err := h.registry.Do(c.Request.Context(), userID, func(*storage.Store) error {
		c.Next()
		return nil
	})
	if err != nil {
		h.respondError(c, err)
	}
}
