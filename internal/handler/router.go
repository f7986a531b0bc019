package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/pkg/response"
)

// NewRouter mounts the health and loan routes behind CORS and access logging.
func NewRouter(logger *zap.Logger, health *HealthHandler, loans *LoanHandler, jwtSecret []byte) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route "+r.URL.Path+" not found")
	})
	router.Use(response.CORSMiddleware, response.LoggingMiddleware(logger))

	health.RegisterRoutes(router)
	loans.RegisterRoutes(router, jwtSecret)
	return router
}
