package v1

import (
	"github.com/gin-gonic/gin"
)

// SettingsRouteHandler defines the endpoints of the settings provider.
type SettingsRouteHandler interface {
	Get(c *gin.Context)
	Set(c *gin.Context)
	History(c *gin.Context)
}

// ValuationRouteHandler defines the valuation endpoints.
type ValuationRouteHandler interface {
	GetCost(c *gin.Context)
	GetAverage(c *gin.Context)
	Recompute(c *gin.Context)
	Lots(c *gin.Context)
}

// RegisterRouteHandler defines the cost register endpoints.
type RegisterRouteHandler interface {
	PostReceipt(c *gin.Context)
	PostIssue(c *gin.Context)
	ListReceipts(c *gin.Context)
	Reverse(c *gin.Context)
}

// RegisterSettingsRoutes mounts settings routes on group.
//
// Usage:
//
//	handler := handlers.NewSettingsHandler(baseHandler, settingsService)
//	RegisterSettingsRoutes(api.Group("/settings"), handler)
func RegisterSettingsRoutes(group *gin.RouterGroup, handler SettingsRouteHandler) {
	group.GET("/:scopeId", handler.Get)
	group.PUT("/:scopeId", handler.Set)
	group.GET("/:scopeId/history", handler.History)
}

// RegisterValuationRoutes mounts valuation routes on group.
func RegisterValuationRoutes(group *gin.RouterGroup, handler ValuationRouteHandler) {
	group.GET("/cost", handler.GetCost)
	group.GET("/average", handler.GetAverage)
	group.POST("/average/recompute", handler.Recompute)
	group.GET("/lots", handler.Lots)
}

// RegisterRegisterRoutes mounts cost register routes on group.
func RegisterRegisterRoutes(group *gin.RouterGroup, handler RegisterRouteHandler) {
	group.POST("/receipts", handler.PostReceipt)
	group.GET("/receipts", handler.ListReceipts)
	group.POST("/issues", handler.PostIssue)
	group.DELETE("/recorders/:recorderId", handler.Reverse)
}
