package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pokopt/fuer-assignment/internal/models"
	"github.com/pokopt/fuer-assignment/internal/service"
	"github.com/pokopt/fuer-assignment/internal/utils"
	"github.com/pokopt/fuer-assignment/internal/validation"
	"github.com/pokopt/fuer-assignment/pkg/logger"
)

// MeasurementController handles HTTP requests for measurement ingestion and
// retrieval.
type MeasurementController struct {
	service *service.MeasurementService
	metrics IngestMetrics
	log     *logger.Logger
}

// IngestMetrics is the slice of the metrics surface the controller reports
// to.
type IngestMetrics interface {
	ReadingsIngested(kind string, n int)
	ReadingRejected(kind, reason string)
	StorageError()
}

// NewMeasurementController creates a new MeasurementController.
func NewMeasurementController(svc *service.MeasurementService, m IngestMetrics, log *logger.Logger) *MeasurementController {
	return &MeasurementController{
		service: svc,
		metrics: m,
		log:     log,
	}
}

// batchResponse is the body returned for a successful batch ingest.
type batchResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

// HandleIngest accepts one reading with the kind in the body and stores it.
func (c *MeasurementController) HandleIngest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var raw validation.RawMeasurement
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		c.reject(w, "invalid", &models.MalformedPayloadError{Reason: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}

	record, err := c.service.Ingest(r.Context(), raw)
	if err != nil {
		c.reject(w, kindLabel(raw.Kind), err)
		return
	}

	c.metrics.ReadingsIngested(record.Kind, 1)
	utils.RespondWithJSON(w, http.StatusCreated, record)
}

// HandleIngestBatch accepts a batch of readings for the kind named in the
// URL path. The batch is stored atomically.
func (c *MeasurementController) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	kind := mux.Vars(r)["kind"]

	var payload struct {
		Values []validation.RawReading `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		c.reject(w, kind, &models.MalformedPayloadError{Reason: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	if payload.Values == nil {
		c.reject(w, kind, &models.MalformedPayloadError{Field: "values", Reason: "is required"})
		return
	}

	records, err := c.service.IngestBatch(r.Context(), kind, payload.Values)
	if err != nil {
		c.reject(w, kind, err)
		return
	}

	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	c.metrics.ReadingsIngested(kind, len(records))
	utils.RespondWithJSON(w, http.StatusCreated, batchResponse{Count: len(records), IDs: ids})
}

// HandleQuery serves raw records or an aggregation over a time window.
func (c *MeasurementController) HandleQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	kinds := query["kind"]
	if len(kinds) == 0 {
		apiErr := models.NewAPIError(models.ErrorCodeMissingParameter, "kind is required (use 'kind=X&kind=Y' for several)", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}

	fromRaw := query.Get("from")
	if fromRaw == "" {
		apiErr := models.NewAPIError(models.ErrorCodeMissingParameter, "from is required", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}
	toRaw := query.Get("to")
	if toRaw == "" {
		apiErr := models.NewAPIError(models.ErrorCodeMissingParameter, "to is required", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}

	from, err := validation.ParseTimestamp(fromRaw)
	if err != nil {
		c.respondError(w, &models.MalformedPayloadError{Field: "from", Reason: "must be RFC3339 or unix seconds"})
		return
	}
	to, err := validation.ParseTimestamp(toRaw)
	if err != nil {
		c.respondError(w, &models.MalformedPayloadError{Field: "to", Reason: "must be RFC3339 or unix seconds"})
		return
	}

	req := service.QueryRequest{Kinds: kinds, From: from, To: to}

	if aggRaw := query.Get("agg"); aggRaw != "" {
		agg, err := models.ParseAggregation(aggRaw)
		if err != nil {
			c.respondError(w, err)
			return
		}
		req.Aggregation = agg

		results, err := c.service.Aggregate(r.Context(), req)
		if err != nil {
			c.respondError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, results)
		return
	}

	records, err := c.service.Query(r.Context(), req)
	if err != nil {
		c.respondError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, records)
}

// HandleHealth reports liveness of the service and its storage backend.
func (c *MeasurementController) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Ping(r.Context()); err != nil {
		c.log.WithError(err).Warn("health check failed")
		utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// reject responds with the mapped error and counts the rejection for the
// given kind label.
func (c *MeasurementController) reject(w http.ResponseWriter, kind string, err error) {
	apiErr := c.mapError(err)
	c.metrics.ReadingRejected(kind, string(apiErr.Code))
	utils.RespondWithError(w, apiErr)
}

// respondError responds with the mapped error without touching the ingest
// counters.
func (c *MeasurementController) respondError(w http.ResponseWriter, err error) {
	utils.RespondWithError(w, c.mapError(err))
}

// mapError translates a domain error into the APIError wire shape.
func (c *MeasurementController) mapError(err error) models.APIError {
	var (
		malformedErr  *models.MalformedPayloadError
		outOfRangeErr *models.OutOfRangeError
	)
	switch {
	case errors.As(err, &malformedErr):
		return models.NewAPIError(models.ErrorCodeMalformedPayload, err.Error(), nil, http.StatusBadRequest)
	case errors.As(err, &outOfRangeErr):
		details := map[string]any{
			"kind":  outOfRangeErr.Kind,
			"value": outOfRangeErr.Value,
			"min":   outOfRangeErr.Min,
			"max":   outOfRangeErr.Max,
		}
		return models.NewAPIError(models.ErrorCodeOutOfRange, err.Error(), details, http.StatusBadRequest)
	case errors.Is(err, models.ErrKindNotEnabled) || errors.Is(err, models.ErrUnknownKind):
		return models.NewAPIError(models.ErrorCodeKindNotEnabled, err.Error(), nil, http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidRange):
		return models.NewAPIError(models.ErrorCodeInvalidRange, err.Error(), nil, http.StatusBadRequest)
	case errors.Is(err, models.ErrStorageUnavailable):
		c.metrics.StorageError()
		c.log.WithError(err).Error("storage unavailable")
		return models.NewAPIError(models.ErrorCodeStorageUnavailable, "storage backend unavailable", nil, http.StatusServiceUnavailable)
	default:
		c.log.WithError(err).Error("unexpected error")
		return models.NewAPIError(models.ErrorCodeInternalServerError, "unexpected error", nil, http.StatusInternalServerError)
	}
}

// kindLabel extracts a printable kind for the rejection counter from an
// unvalidated payload field.
func kindLabel(raw any) string {
	if name, ok := raw.(string); ok && name != "" {
		return name
	}
	return "invalid"
}
