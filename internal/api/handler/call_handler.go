package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hoangnt/dialout/internal/api/domain"
	"github.com/hoangnt/dialout/internal/api/dto"
	"github.com/hoangnt/dialout/internal/api/model"
	"github.com/hoangnt/dialout/internal/api/storage"
	"github.com/hoangnt/dialout/internal/callspec"
)

// defaultMaxAttempts bounds how often the spooler retries a transient
// delivery failure before the call is marked FAILED.
const defaultMaxAttempts = 3

// CreateCall handles POST /api/v1/calls.
// The request is validated against the call file constraints before
// anything is persisted, so a call that reaches the queue can only fail
// for environmental reasons (spool directory, permissions, ownership).
func (h *CallHandler) CreateCall(c *gin.Context) {
	var req dto.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	spec := callspec.Spec{
		Channel:    req.Channel,
		CallerID:   req.CallerID,
		Account:    req.Account,
		MaxRetries: req.MaxRetries,
		RetryTime:  req.RetryTime,
		WaitTime:   req.WaitTime,
		Variables:  req.Variables,
		Archive:    req.Archive,
		Action: callspec.Action{
			Type:        req.Action.Type,
			Application: req.Action.Application,
			Data:        req.Action.Data,
			Context:     req.Action.Context,
			Extension:   req.Action.Extension,
			Priority:    req.Action.Priority,
		},
	}

	if req.ScheduledAt != "" {
		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			h.logger.Error("Invalid scheduled_at",
				slog.String("scheduled_at", req.ScheduledAt),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "scheduled_at must be an RFC3339 timestamp",
			})
			return
		}
		spec.ScheduledAt = &scheduledAt
	}

	if err := spec.Validate(); err != nil {
		h.logger.Error("Call request failed validation", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		h.logger.Error("Failed to marshal call spec", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create call",
		})
		return
	}

	call := model.Call{
		CallID:         uuid.New().String(),
		IdempotencyKey: req.IdempotencyKey,
		Payload:        string(payload),
		Status:         domain.CallStatusPending,
		MaxAttempts:    defaultMaxAttempts,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if spec.ScheduledAt != nil {
		call.ScheduledAt = sql.NullTime{Time: *spec.ScheduledAt, Valid: true}
	}

	if err := h.storage.CreateCall(c.Request.Context(), &call); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			existing, getErr := h.storage.GetCallByIdempotencyKey(c.Request.Context(), req.IdempotencyKey)
			if getErr == nil {
				c.JSON(http.StatusOK, toCallDTO(existing))
				return
			}
		}
		h.logger.Error("Failed to create call", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create call",
		})
		return
	}

	msg, _ := json.Marshal(map[string]string{"call_id": call.CallID})
	if err := h.rabbitClient.Publish(c.Request.Context(), msg, "application/json"); err != nil {
		h.logger.Error("Failed to publish call message",
			slog.String("call_id", call.CallID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue call",
		})
		return
	}

	h.logger.Info("Call accepted",
		slog.String("call_id", call.CallID),
		slog.String("channel", req.Channel),
		slog.String("action", req.Action.Type),
	)

	c.JSON(http.StatusCreated, toCallDTO(&call))
}

// GetCall handles GET /api/v1/calls/:call_id
func (h *CallHandler) GetCall(c *gin.Context) {
	callID := c.Param("call_id")

	if _, err := uuid.Parse(callID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "call_id must be a valid UUID",
		})
		return
	}

	call, err := h.storage.GetCallByID(c.Request.Context(), callID)
	if err != nil {
		if errors.Is(err, domain.ErrCallNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Call not found",
			})
			return
		}
		h.logger.Error("Failed to get call",
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get call",
		})
		return
	}

	c.JSON(http.StatusOK, toCallDTO(call))
}

// ListCalls handles GET /api/v1/calls with filtering and cursor pagination.
func (h *CallHandler) ListCalls(c *gin.Context) {
	var req dto.ListCallsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeCallCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.CallFilter{
		Status:   req.Status,
		Channel:  req.Channel,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	calls, err := h.storage.ListCalls(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list calls", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list calls",
		})
		return
	}

	hasMore := len(calls) > req.PageSize
	if hasMore {
		calls = calls[:req.PageSize]
	}

	callResponse := make([]dto.CallDTO, len(calls))
	for i := range calls {
		callResponse[i] = *toCallDTO(&calls[i])
	}

	var nextCursor string
	if hasMore {
		last := calls[len(calls)-1]
		nextCursor = EncodeCallCursor(&storage.CallCursor{
			CreatedAt: last.CreatedAt,
			CallID:    last.CallID,
		})
	}

	c.JSON(http.StatusOK, dto.ListCallsResponse{
		Calls:      callResponse,
		NextCursor: nextCursor,
	})
}

// CancelCall handles POST /api/v1/calls/:call_id/cancel. Only PENDING calls
// can be canceled; once a spooler claims a call its file may already be in
// the spool directory and the telephony server owns it.
func (h *CallHandler) CancelCall(c *gin.Context) {
	callID := c.Param("call_id")

	if _, err := uuid.Parse(callID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "call_id must be a valid UUID",
		})
		return
	}

	err := h.storage.CancelCall(c.Request.Context(), callID)
	switch {
	case err == nil:
		h.logger.Info("Call canceled", slog.String("call_id", callID))
		c.JSON(http.StatusOK, gin.H{
			"call_id": callID,
			"status":  domain.CallStatusCanceled,
		})
	case errors.Is(err, domain.ErrCallNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Call not found",
		})
	case errors.Is(err, domain.ErrCallNotCancelable):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Call is no longer pending",
		})
	default:
		h.logger.Error("Failed to cancel call",
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel call",
		})
	}
}

// DeleteCall handles DELETE /api/v1/calls/:call_id for terminal calls.
func (h *CallHandler) DeleteCall(c *gin.Context) {
	callID := c.Param("call_id")

	if _, err := uuid.Parse(callID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "call_id must be a valid UUID",
		})
		return
	}

	err := h.storage.DeleteCall(c.Request.Context(), callID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, domain.ErrCallNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Call not found",
		})
	case errors.Is(err, domain.ErrCallNotDeletable):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Call has not reached a terminal state",
		})
	default:
		h.logger.Error("Failed to delete call",
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete call",
		})
	}
}

func toCallDTO(call *model.Call) *dto.CallDTO {
	d := &dto.CallDTO{
		CallID:         call.CallID,
		IdempotencyKey: call.IdempotencyKey,
		Payload:        call.Payload,
		Status:         call.Status,
		AttemptCount:   call.AttemptCount,
		MaxAttempts:    call.MaxAttempts,
		CreatedAt:      call.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      call.UpdatedAt.Format(time.RFC3339),
	}
	if call.ScheduledAt.Valid {
		d.ScheduledAt = call.ScheduledAt.Time.Format(time.RFC3339)
	}
	if call.SpoolFilename.Valid {
		d.SpoolFilename = call.SpoolFilename.String
	}
	if call.ErrorMessage.Valid {
		d.ErrorMessage = call.ErrorMessage.String
	}
	return d
}
