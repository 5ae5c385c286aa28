// Package api is the HTTP surface of the ingestion gateway. Devices
// upload captured notification events; operators list records, review
// them, and curate instance labels.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/ingest"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/redis"
	"github.com/camiloreynaga/yape-notifier-sub000/internal/sqs"
)

// Repository defines the store operations the handlers need.
type Repository interface {
	GetNotification(ctx context.Context, id uuid.UUID) (*db.NotificationRecord, error)
	ListNotificationsByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.NotificationRecord, error)
	UpdateNotificationStatus(ctx context.Context, id uuid.UUID, status string) error
	ListInstancesByDevice(ctx context.Context, deviceID uuid.UUID) ([]*db.AppInstance, error)
	UpdateInstanceLabel(ctx context.Context, id uuid.UUID, label string) (*db.AppInstance, error)
}

// Ingestor runs one raw event through the capture pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, deviceID uuid.UUID, ev ingest.RawEvent) (*ingest.Result, error)
}

// EventRequest is the upload body for one captured notification.
type EventRequest struct {
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	PackageName   string    `json:"package_name"`
	AndroidUserID *int      `json:"android_user_id,omitempty"`
	AndroidUID    *int      `json:"android_uid,omitempty"`
	PostedAt      time.Time `json:"posted_at"`
	ReceivedAt    time.Time `json:"received_at"`
	SourceApp     string    `json:"source_app,omitempty"`
	ProposedLabel *string   `json:"proposed_label,omitempty"`
}

// EventResponse is returned after ingesting an event.
type EventResponse struct {
	ID        string `json:"id,omitempty"`
	Status    string `json:"status,omitempty"`
	Duplicate bool   `json:"duplicate"`
	Rejected  bool   `json:"rejected,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	repo        Repository
	ingestor    Ingestor
	idempotency *redis.IdempotencyService // nil if Redis not configured
	producer    *sqs.Producer             // nil if SQS not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, repo Repository, ingestor Ingestor) *Handler {
	return &Handler{
		logger:   logger,
		repo:     repo,
		ingestor: ingestor,
	}
}

// NewHandlerWithIdempotency creates a handler with replay suppression.
func NewHandlerWithIdempotency(logger *zap.Logger, repo Repository, ingestor Ingestor, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		ingestor:    ingestor,
		idempotency: idempotency,
	}
}

// NewHandlerWithSQS creates a handler that also enqueues audit jobs.
func NewHandlerWithSQS(logger *zap.Logger, repo Repository, ingestor Ingestor, idempotency *redis.IdempotencyService, producer *sqs.Producer) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		ingestor:    ingestor,
		idempotency: idempotency,
		producer:    producer,
	}
}

// IngestEvent handles POST /v1/events.
// The device identifies itself with X-Device-ID and may carry an
// Idempotency-Key so upload retries replay the original response.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceIDStr := r.Header.Get("X-Device-ID")
	if deviceIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing device id", "X-Device-ID header is required")
		return
	}
	deviceID, err := uuid.Parse(deviceIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid device id", "X-Device-ID must be a valid UUID")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.PackageName == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing package_name", "package_name is required")
		return
	}
	if req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing body", "body is required")
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, deviceIDStr, idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrUploadInFlight) {
				h.writeError(w, http.StatusConflict, "upload_in_flight",
					"Upload is already being processed",
					"Another upload with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_ = json.NewEncoder(w).Encode(EventResponse{
				ID:        cached.NotificationID,
				Status:    db.StatusPending,
				Duplicate: cached.Duplicate,
			})
			return
		}
	}

	ev := ingest.RawEvent{
		Title:         req.Title,
		Body:          req.Body,
		PackageName:   req.PackageName,
		AndroidUserID: req.AndroidUserID,
		AndroidUID:    req.AndroidUID,
		PostedAt:      req.PostedAt,
		ReceivedAt:    req.ReceivedAt,
		SourceAppHint: req.SourceApp,
		ProposedLabel: req.ProposedLabel,
	}

	result, err := h.ingestor.Ingest(ctx, deviceID, ev)
	if err != nil {
		h.logger.Error("failed to ingest event",
			zap.Error(err),
			zap.String("device_id", deviceIDStr),
			zap.String("package_name", req.PackageName),
		)
		if idempotencyKey != "" && h.idempotency != nil {
			// Drop the reservation so the device's retry can proceed.
			if relErr := h.idempotency.Release(ctx, deviceIDStr, idempotencyKey); relErr != nil {
				h.logger.Warn("failed to release idempotency reservation", zap.Error(relErr))
			}
		}
		h.writeError(w, http.StatusInternalServerError, "ingest_error", "Failed to ingest event", "")
		return
	}

	if result.Record == nil {
		// Inline classification rejected the event before persistence.
		reason := ""
		if result.Outcome != nil {
			reason = string(result.Outcome.Reason)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(EventResponse{Rejected: true, Reason: reason})
		return
	}

	rec := result.Record

	h.logger.Info("event ingested",
		zap.String("id", rec.ID.String()),
		zap.String("device_id", deviceIDStr),
		zap.String("source_app", rec.SourceApp),
		zap.Bool("duplicate", rec.IsDuplicate),
	)

	if idempotencyKey != "" && h.idempotency != nil {
		stored := &redis.IngestResult{
			NotificationID: rec.ID.String(),
			StatusCode:     http.StatusCreated,
			Duplicate:      rec.IsDuplicate,
		}
		if err := h.idempotency.Store(ctx, deviceIDStr, idempotencyKey, stored); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	if h.producer != nil {
		if msgID, err := h.producer.Enqueue(ctx, rec); err != nil {
			// The audit worker's poll fallback will find the record.
			h.logger.Warn("failed to enqueue audit job",
				zap.Error(err),
				zap.String("notification_id", rec.ID.String()),
			)
		} else {
			h.logger.Debug("audit job enqueued",
				zap.String("notification_id", rec.ID.String()),
				zap.String("sqs_message_id", msgID),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(EventResponse{
		ID:        rec.ID.String(),
		Status:    rec.Status,
		Duplicate: rec.IsDuplicate,
	})
}

// GetNotification handles GET /v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	recID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	rec, err := h.repo.GetNotification(ctx, recID)
	if err != nil {
		h.logger.Error("failed to get notification",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rec)
}

// ListNotifications handles GET /v1/notifications?tenant_id=xxx&limit=20&offset=0
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantIDStr := r.URL.Query().Get("tenant_id")
	if tenantIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing tenant_id", "tenant_id query parameter is required")
		return
	}

	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant_id", "tenant_id must be a valid UUID")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	records, err := h.repo.ListNotificationsByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("tenant_id", tenantIDStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":   records,
		"limit":  limit,
		"offset": offset,
		"count":  len(records),
	})
}

// ReviewNotification handles PATCH /v1/notifications/{id}/status.
// Review is the only way a record leaves pending, and it is one-way.
func (h *Handler) ReviewNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	recID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Status != db.StatusValidated && req.Status != db.StatusInconsistent {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid status",
			"status must be one of: validated, inconsistent")
		return
	}

	if err := h.repo.UpdateNotificationStatus(ctx, recID, req.Status); err != nil {
		h.logger.Warn("review rejected",
			zap.Error(err),
			zap.String("id", idStr),
			zap.String("status", req.Status),
		)
		h.writeError(w, http.StatusConflict, "review_conflict",
			"Record cannot be reviewed", "record does not exist or was already reviewed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     idStr,
		"status": req.Status,
	})
}

// ListInstances handles GET /v1/instances?device_id=xxx
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deviceIDStr := r.URL.Query().Get("device_id")
	if deviceIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing device_id", "device_id query parameter is required")
		return
	}

	deviceID, err := uuid.Parse(deviceIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid device_id", "device_id must be a valid UUID")
		return
	}

	instances, err := h.repo.ListInstancesByDevice(ctx, deviceID)
	if err != nil {
		h.logger.Error("failed to list app instances",
			zap.Error(err),
			zap.String("device_id", deviceIDStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list app instances", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  instances,
		"count": len(instances),
	})
}

// UpdateInstanceLabel handles PATCH /v1/instances/{id}/label
func (h *Handler) UpdateInstanceLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	instID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid instance ID", "ID must be a valid UUID")
		return
	}

	var req struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Label == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing label", "label is required")
		return
	}

	inst, err := h.repo.UpdateInstanceLabel(ctx, instID, req.Label)
	if err != nil {
		h.logger.Error("failed to update instance label",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusNotFound, "not_found", "App instance not found", "")
		return
	}

	h.logger.Info("instance label updated",
		zap.String("id", idStr),
		zap.String("label", req.Label),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(inst)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
