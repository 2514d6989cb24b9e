package server

import (
	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Namespace routes
	apiRoutes.GET("/namespaces", routes.GetNamespacesHandler)
	apiRoutes.POST("/namespaces", routes.CreateNamespaceHandler, middleware.RequirePermission("namespace.create"))

	// Entity routes
	apiRoutes.GET("/namespaces/:ns/entities", routes.GetEntitiesHandler)
	apiRoutes.GET("/namespaces/:ns/entities/:id", routes.GetEntityHandler)
	apiRoutes.POST("/namespaces/:ns/entities", routes.UpsertEntityHandler, middleware.RequirePermission("entity.write"))
	apiRoutes.POST("/namespaces/:ns/entities/:id/sync", routes.SyncEntityHandler, middleware.RequirePermission("entity.write"))
	apiRoutes.POST("/namespaces/:ns/sync", routes.SyncNamespaceHandler, middleware.RequirePermission("entity.write"))

	// Relationship routes
	apiRoutes.GET("/namespaces/:ns/relationships", routes.GetRelationshipsHandler)
	apiRoutes.POST("/namespaces/:ns/relationships", routes.AssertRelationshipHandler, middleware.RequirePermission("relationship.write"))
	apiRoutes.DELETE("/namespaces/:ns/relationships", routes.RetractRelationshipHandler, middleware.RequirePermission("relationship.write"))

	// Projection routes
	apiRoutes.GET("/namespaces/:ns/graph/:id", routes.GetNeighborhoodHandler)
	apiRoutes.GET("/namespaces/:ns/drift", routes.GetDriftHandler)
	apiRoutes.POST("/namespaces/:ns/rebuild", routes.RebuildProjectionHandler, middleware.RequirePermission("graph.rebuild"))

	// Duplicate routes
	apiRoutes.GET("/namespaces/:ns/duplicates", routes.GetDuplicatesHandler)
	apiRoutes.POST("/namespaces/:ns/duplicates", routes.RunDedupeHandler, middleware.RequirePermission("dedupe.run"))
	apiRoutes.POST("/namespaces/:ns/duplicates/resolve", routes.ResolvePairHandler, middleware.RequirePermission("dedupe.resolve"))

	// Ablation routes
	apiRoutes.POST("/namespaces/:ns/ablations/plan", routes.PlanAblationHandler, middleware.RequirePermission("ablation.plan"))
	apiRoutes.POST("/namespaces/:ns/ablations", routes.ExecuteAblationHandler, middleware.RequirePermission("ablation.execute"))

	// Missing name routes
	apiRoutes.GET("/namespaces/:ns/missing", routes.GetMissingHandler)
	apiRoutes.POST("/namespaces/:ns/missing/triage", routes.TriageMissingHandler, middleware.RequirePermission("missing.triage"))

	// Blacklist routes
	apiRoutes.GET("/namespaces/:ns/blacklist", routes.GetBlacklistHandler)
	apiRoutes.POST("/namespaces/:ns/blacklist", routes.AddBlacklistHandler, middleware.RequirePermission("blacklist.manage"))
	apiRoutes.DELETE("/namespaces/:ns/blacklist/:name", routes.RemoveBlacklistHandler, middleware.RequirePermission("blacklist.manage"))
}
