package handlers

import (
	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"spectroctl/internal/logger"
	"spectroctl/internal/service"
)

// Handler wires the HTTP surface to the gateway services.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds the Gin router with all gateway routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Measurement stream (HTTP upgrade), same port.
	router.GET("/ws", h.wsMeasurements)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.operatorMiddleware)
	{
		// Parameter names embed slashes ("DEVICE/FIELD"), hence the wildcard.
		api.GET("/parameters/*name", h.getParameter)
		api.PUT("/parameters/*name", h.setParameter)

		api.GET("/states", h.getStates)

		logbook := api.Group("/logbook")
		{
			logbook.POST("", h.postLogbook)
			logbook.GET("", h.getLogbook)
		}
	}
}
