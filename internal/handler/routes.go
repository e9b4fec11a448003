package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/meridianledger/core/internal/middleware"
)

// RegisterRoutes wires every handler's operations onto the Echo engine
// under /api/v1, protected by the Auth0 bearer-token middleware and
// per-caller rate limiting.
func RegisterRoutes(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	accountHandler *AccountHandler,
	holdHandler *HoldHandler,
	transactionHandler *TransactionHandler,
	workflowHandler *WorkflowHandler,
	wsHandler *WebSocketHandler,
) {
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())
	api.Use(middleware.RateLimitMiddleware(rateLimiter))

	accounts := api.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.FindByCustomer)
	accounts.GET("/:id", accountHandler.GetAccount)
	accounts.GET("/by-product/:product_code", accountHandler.FindByProduct)
	accounts.GET("/by-status/:status", accountHandler.FindByStatus)
	accounts.PATCH("/:id/status", accountHandler.UpdateStatus)
	accounts.GET("/:id/status-history", accountHandler.GetStatusHistory)
	accounts.GET("/:id/holds/active", holdHandler.GetActiveHolds)
	accounts.GET("/:id/holds/history", holdHandler.GetHoldHistory)
	accounts.GET("/:id/holds/analytics", holdHandler.Analytics)
	accounts.POST("/:id/holds/reorder-priorities", holdHandler.ReorderPriorities)
	accounts.POST("/:id/holds/override", holdHandler.OverrideForTransaction)
	accounts.GET("/:id/workflows", workflowHandler.FindByAccount)

	holds := api.Group("/holds")
	holds.POST("", holdHandler.PlaceHold)
	holds.GET("/:id", holdHandler.GetHold)
	holds.POST("/:id/release", holdHandler.ReleaseHold)
	holds.PATCH("/:id", holdHandler.ModifyHold)
	holds.POST("/:id/cancel", holdHandler.CancelHold)
	holds.GET("/by-court-reference/:reference", holdHandler.FindByCourtReference)
	holds.POST("/bulk-release", holdHandler.BulkRelease)
	holds.POST("/bulk-place", holdHandler.BulkPlace)

	transactions := api.Group("/transactions")
	transactions.POST("", transactionHandler.Post)
	transactions.GET("", transactionHandler.Find)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.POST("/:id/post-approved", transactionHandler.PostApproved)
	transactions.POST("/reverse", transactionHandler.Reverse)
	transactions.GET("/:id/workflow", workflowHandler.GetByTransaction)

	workflows := api.Group("/workflows")
	workflows.POST("", workflowHandler.Open)
	workflows.GET("", workflowHandler.Find)
	workflows.GET("/:id", workflowHandler.GetWorkflow)
	workflows.POST("/:id/approvals", workflowHandler.RecordApproval)
	workflows.POST("/:id/steps", workflowHandler.AppendStep)
	workflows.PATCH("/:id/status", workflowHandler.Transition)
	workflows.POST("/:id/documents", workflowHandler.UploadDocument)
	workflows.GET("/:id/documents/url", workflowHandler.GetDocumentURL)

	// The WebSocket upgrade authenticates itself via its own token query
	// parameter rather than the Authorization header, so it is registered
	// outside the authenticated group.
	e.GET("/ws", wsHandler.HandleWS)
}
