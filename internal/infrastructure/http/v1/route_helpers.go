// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// OrderRouteHandler defines the staff endpoints every order kind serves.
type OrderRouteHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Cancel(c *gin.Context)
	ResendLink(c *gin.Context)
	RecordReceipt(c *gin.Context)
}

// SupplierRouteHandler defines the public endpoints behind a supplier link.
type SupplierRouteHandler interface {
	View(c *gin.Context)
	Accept(c *gin.Context)
	Reject(c *gin.Context)
}

// RegisterOrderRoutes registers the staff routes of one order kind.
//
// Usage:
//
//	handler := handlers.NewPurchaseOrderHandler(baseHandler, purchaseOrders)
//	RegisterOrderRoutes(protected.Group("/purchase-orders"), handler)
func RegisterOrderRoutes(group *gin.RouterGroup, handler OrderRouteHandler) {
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.POST("/:id/cancel", handler.Cancel)
	group.POST("/:id/resend-link", handler.ResendLink)
	group.POST("/:id/lines/:lineId/receipts", handler.RecordReceipt)
}

// RegisterSupplierRoutes registers the token-authenticated supplier routes of one order kind.
// The group must not require a staff token: the capability token in the path is the credential.
func RegisterSupplierRoutes(group *gin.RouterGroup, handler SupplierRouteHandler) {
	group.GET("/:token", handler.View)
	group.POST("/:token/accept", handler.Accept)
	group.POST("/:token/reject", handler.Reject)
}
