package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pokopt/fuer-assignment/internal/controller"
	"github.com/pokopt/fuer-assignment/internal/metrics"
	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/utils"
)

// NewRouter assembles all API routes.
func NewRouter(ctrl *controller.MeasurementController, m *metrics.Metrics) *mux.Router {
	router := mux.NewRouter()
	router.Use(m.Instrument)

	// Measurements
	router.HandleFunc("/measurements", ctrl.HandleIngest).Methods(http.MethodPost)
	router.HandleFunc("/measurements", ctrl.HandleQuery).Methods(http.MethodGet)
	router.HandleFunc("/measurements/{kind}", ctrl.HandleIngestBatch).Methods(http.MethodPost)

	// Operational endpoints
	router.HandleFunc("/health", ctrl.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeNotFound, "route not found", nil, http.StatusNotFound))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeMethodNotAllowed, "method not allowed", nil, http.StatusMethodNotAllowed))
	})

	return router
}
