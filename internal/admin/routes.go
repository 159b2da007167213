package admin

import (
	"github.com/gin-gonic/gin"

	"ytgate/internal/auth"
	"ytgate/internal/config"
	"ytgate/internal/directory"
	"ytgate/internal/keyservice"
)

// SetupRoutes mounts the admin API under /admin behind basic auth.
func SetupRoutes(router *gin.Engine, keys *keyservice.Service, resolver directory.Resolver, cfg *config.Config) {
	handler := NewHandler(keys, resolver)

	adminGroup := router.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg.Admin.Password))
	{
		keysGroup := adminGroup.Group("/keys")
		{
			keysGroup.GET("", handler.ListKeysHandler)
			keysGroup.POST("", handler.GenerateKeyHandler)
			keysGroup.POST("/assign", handler.AssignKeyHandler)
			keysGroup.DELETE("/:key", handler.DeleteKeyHandler)
		}

		adminGroup.GET("/owners/:ref/keys", handler.OwnerKeysHandler)
	}
}
