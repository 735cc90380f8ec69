package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkoziy/contratos/crmsync/internal/logger"
)

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(h *Handler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(log), AccessLog(), ErrorHandler(), Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/sync", h.RunSync)
		api.GET("/sync/status", h.SyncStatus)

		api.GET("/sales", h.ListSales)
		api.GET("/sales/:id", h.GetSale)
		api.DELETE("/sales/:id", h.HideSale)
		api.POST("/sales/:id/restore", h.RestoreSale)

		contractRoutes := api.Group("/contracts", RequireActor())
		contractRoutes.POST("/from-sale/:saleId", h.DraftContract)
		contractRoutes.POST("/:id/transition", h.TransitionContract)
	}
	return r
}
