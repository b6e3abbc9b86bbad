package routes

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Postgen/internal/api/handlers/post"
	"Postgen/internal/api/middleware"
	"Postgen/internal/core/generation"
	"Postgen/internal/core/posts"
)

// RegisterPostRoutes registers the post CRUD and generation endpoints on r.
// r is expected to be mounted under /api.
// generateLimiter, when non-nil, applies a stricter limit to the generate endpoint.
func RegisterPostRoutes(
	r chi.Router,
	service posts.Service,
	generator generation.Service,
	generateLimiter *middleware.RateLimiter,
	logger *zap.Logger,
) {
	createHandler := post.NewCreateHandler(service, logger)
	getHandler := post.NewGetHandler(service, logger)
	updateHandler := post.NewUpdateHandler(service, logger)
	deleteHandler := post.NewDeleteHandler(service, logger)
	generateHandler := post.NewGenerateHandler(generator, logger)

	r.Route("/posts", func(r chi.Router) {
		r.Post("/", createHandler.HandleCreate)
		r.Get("/", getHandler.HandleList)

		if generateLimiter != nil {
			r.With(generateLimiter.Middleware).Post("/generate", generateHandler.HandleGenerate)
		} else {
			r.Post("/generate", generateHandler.HandleGenerate)
		}

		r.Get("/{id}", getHandler.HandleGet)
		r.Put("/{id}", updateHandler.HandleUpdate)
		r.Delete("/{id}", deleteHandler.HandleDelete)
	})
}
