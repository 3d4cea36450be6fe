package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iadvisors/brand-assistant/internal/common"
	"github.com/iadvisors/brand-assistant/internal/config"
	"github.com/iadvisors/brand-assistant/internal/httpapi/handlers"
	"github.com/iadvisors/brand-assistant/internal/httpapi/middleware"
	"github.com/iadvisors/brand-assistant/internal/store/rabbitmq"
	"github.com/iadvisors/brand-assistant/internal/store/redisstore"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, rabbit)

	r.GET("/ping", func(c *gin.Context) {
		common.Ok(c, gin.H{"message": "pong"})
	})

	// users + auth
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	r.GET("/brands", h.ListBrands)

	// Chat (tenant scoped: every route resolves the brand from X-Brand-Id)
	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.BrandRequired(h.Brands))
	chatGroup.POST("/messages", h.SendChatMessage)
	chatGroup.POST("/threads", h.CreateChatThread)
	chatGroup.GET("/threads/:thread_id/messages", h.ListThreadMessages)
	chatGroup.PUT("/threads/:thread_id", h.RenameChatThread)
	chatGroup.GET("/users/:user_id/history", h.GetChatHistory)
	chatGroup.GET("/users/:user_id/threads", h.ListChatThreads)
	chatGroup.GET("/communication-profiles", h.ListCommunicationProfiles)
	chatGroup.POST("/messages/async", h.SendChatMessageAsync)
	chatGroup.GET("/jobs/:job_id", h.GetChatJob)

	return r
}
