package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/internal/data"
	"github.com/opsplane/opsplane-backend/internal/finance"
	"github.com/opsplane/opsplane-backend/internal/serve/httperror"
	"github.com/opsplane/opsplane-backend/internal/serve/httpresponse"
	"github.com/opsplane/opsplane-backend/internal/tenantctx"
)

type TaskHandler struct {
	Models         *data.Models
	FinanceService *finance.Service
}

type createTaskRequest struct {
	BookingID       *string               `json:"bookingId,omitempty"`
	CommissionTotal string                `json:"commissionTotal"`
	Assignees       []taskAssigneeRequest `json:"assignees"`
}

type taskAssigneeRequest struct {
	UserID          string `json:"userId"`
	CommissionShare string `json:"commissionShare"`
}

type taskResponse struct {
	ID              string                 `json:"id"`
	BookingID       *string                `json:"bookingId,omitempty"`
	Status          string                 `json:"status"`
	CommissionTotal string                 `json:"commissionTotal"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
	Assignees       []taskAssigneeResponse `json:"assignees,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

type taskAssigneeResponse struct {
	UserID          string `json:"userId"`
	CommissionShare string `json:"commissionShare"`
}

func toTaskResponse(t *data.Task, assignees []data.TaskAssignee) taskResponse {
	resp := taskResponse{
		ID:              t.ID,
		BookingID:       t.BookingID,
		Status:          string(t.Status),
		CommissionTotal: t.CommissionTotal.StringFixed(2),
		CompletedAt:     t.CompletedAt,
		CreatedAt:       t.CreatedAt,
	}
	for _, a := range assignees {
		resp.Assignees = append(resp.Assignees, taskAssigneeResponse{
			UserID:          a.UserID,
			CommissionShare: a.CommissionShare.StringFixed(2),
		})
	}
	return resp
}

func (h TaskHandler) parseAssignees(tenantID, taskID string, in []taskAssigneeRequest) ([]data.TaskAssignee, *httperror.HTTPError) {
	assignees := make([]data.TaskAssignee, 0, len(in))
	for _, a := range in {
		if a.UserID == "" {
			return nil, httperror.BadRequest("each assignee needs a userId", nil)
		}
		share, err := decimal.NewFromString(a.CommissionShare)
		if err != nil {
			return nil, httperror.BadRequest("commissionShare must be a decimal percentage", err)
		}
		assignees = append(assignees, data.TaskAssignee{
			TenantID:        tenantID,
			TaskID:          taskID,
			UserID:          a.UserID,
			CommissionShare: data.NewPercent(share),
		})
	}
	return assignees, nil
}

func (h TaskHandler) Create(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body createTaskRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	commissionTotal, err := data.MoneyFromString(body.CommissionTotal)
	if err != nil {
		httperror.BadRequest("commissionTotal must be a decimal number", err).Render(rw, req)
		return
	}
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	// The task and its assignees land together or not at all.
	task, err := db.RunInTransactionWithResult(ctx, h.Models.DBConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Task, error) {
		created, txErr := h.Models.Tasks.Insert(ctx, dbTx, body.BookingID, commissionTotal)
		if txErr != nil {
			return nil, txErr
		}
		if len(body.Assignees) > 0 {
			assignees, httpErr := h.parseAssignees(tenantID, created.ID, body.Assignees)
			if httpErr != nil {
				return nil, httpErr
			}
			if txErr = h.Models.Tasks.ReplaceAssignees(ctx, dbTx, created.ID, assignees); txErr != nil {
				return nil, txErr
			}
		}
		return created, nil
	})
	if err != nil {
		var httpErr *httperror.HTTPError
		if errors.As(err, &httpErr) {
			httpErr.Render(rw, req)
			return
		}
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	assignees, err := h.Models.Tasks.GetAssignees(ctx, h.Models.DBConnectionPool, task.ID)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusCreated, toTaskResponse(task, assignees))
}

func (h TaskHandler) Get(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	taskID := chi.URLParam(req, "id")

	task, err := h.Models.Tasks.Get(ctx, h.Models.DBConnectionPool, taskID, false)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	assignees, err := h.Models.Tasks.GetAssignees(ctx, h.Models.DBConnectionPool, taskID)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, toTaskResponse(task, assignees))
}

type updateTaskStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus drives the task state machine. Completion goes through the
// finance service so commission accrual happens atomically with the status
// change.
func (h TaskHandler) UpdateStatus(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	taskID := chi.URLParam(req, "id")

	var body updateTaskStatusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}

	target := data.TaskStatus(body.Status)
	switch target {
	case data.TaskStatusCompleted:
		task, err := h.FinanceService.CompleteTask(ctx, taskID)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		httpresponse.Render(rw, http.StatusOK, toTaskResponse(task, nil))
		return
	case data.TaskStatusInProgress, data.TaskStatusCancelled:
		task, err := h.Models.Tasks.Get(ctx, h.Models.DBConnectionPool, taskID, false)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		updated, err := h.Models.Tasks.UpdateStatus(ctx, h.Models.DBConnectionPool, taskID, task.Status, target)
		if err != nil {
			httperror.FromError(ctx, err).Render(rw, req)
			return
		}
		httpresponse.Render(rw, http.StatusOK, toTaskResponse(updated, nil))
		return
	default:
		httperror.BadRequest("status must be one of IN_PROGRESS, COMPLETED, CANCELLED", nil).Render(rw, req)
	}
}

type replaceAssigneesRequest struct {
	Assignees []taskAssigneeRequest `json:"assignees"`
}

func (h TaskHandler) ReplaceAssignees(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	taskID := chi.URLParam(req, "id")

	var body replaceAssigneesRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httperror.BadRequest("", err).Render(rw, req)
		return
	}
	tenantID, err := tenantctx.Require(ctx)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	assignees, httpErr := h.parseAssignees(tenantID, taskID, body.Assignees)
	if httpErr != nil {
		httpErr.Render(rw, req)
		return
	}

	if err := h.Models.Tasks.ReplaceAssignees(ctx, h.Models.DBConnectionPool, taskID, assignees); err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}

	task, err := h.Models.Tasks.Get(ctx, h.Models.DBConnectionPool, taskID, false)
	if err != nil {
		httperror.FromError(ctx, err).Render(rw, req)
		return
	}
	httpresponse.Render(rw, http.StatusOK, toTaskResponse(task, assignees))
}
