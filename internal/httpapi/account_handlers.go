package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"promosuite.app/internal/audit"
	"promosuite.app/internal/auth"
	"promosuite.app/internal/deletion"
)

// AccountDeleter runs the deletion workflow. *deletion.Service implements it.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, req deletion.Request) (deletion.Report, error)
}

// deletePaths serve the same handler; the second keeps the existing web client working.
var deletePaths = []string{
	"/v1/account/delete",
	"/.netlify/functions/delete-account",
}

type deleteAccountRequest struct {
	UserID string `json:"userId"`
}

type deleteAccountResponse struct {
	Success bool `json:"success"`
	deletion.Report
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost, http.MethodOptions)
		return
	}

	var req deleteAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "Missing userId")
		return
	}

	ctx := audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		_ = audit.LogEvent(ctx, audit.EventDeleteUnauthorized, map[string]any{
			"target_user_id": req.UserID,
			"reason":         deletion.ReasonMalformed,
		})
		writeError(w, r, http.StatusUnauthorized, deletion.ReasonMalformed)
		return
	}

	_ = audit.LogEvent(ctx, audit.EventDeleteRequested, map[string]any{
		"target_user_id": req.UserID,
	})

	report, err := a.deleter.DeleteAccount(ctx, deletion.Request{
		TargetUserID:     req.UserID,
		BearerCredential: token,
	})
	if err != nil {
		a.handleDeletionError(ctx, w, r, req.UserID, err)
		return
	}

	ctx = auth.ContextWithUser(ctx, req.UserID)
	_ = audit.LogEvent(ctx, audit.EventDeleteCompleted, map[string]any{
		"success_count": report.Summary.SuccessCount,
		"total_count":   report.Summary.TotalCount,
		"auth_deleted":  report.Identity.Deleted,
		"strategy":      string(report.Identity.Strategy),
	})
	writeJSON(w, http.StatusOK, deleteAccountResponse{Success: true, Report: report})
}

func (a *API) handleDeletionError(ctx context.Context, w http.ResponseWriter, r *http.Request, target string, err error) {
	var authErr *deletion.AuthError
	switch {
	case errors.As(err, &authErr):
		_ = audit.LogEvent(ctx, audit.EventDeleteUnauthorized, map[string]any{
			"target_user_id": target,
			"reason":         authErr.Reason,
		})
		writeError(w, r, http.StatusUnauthorized, authErr.Reason)
	case errors.Is(err, deletion.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, "Missing userId")
	case errors.Is(err, deletion.ErrInProgress):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		_ = audit.LogEvent(ctx, audit.EventDeleteFailed, map[string]any{
			"target_user_id": target,
			"error":          err.Error(),
		})
		payload := map[string]any{
			"error":   "Internal server error",
			"details": err.Error(),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusInternalServerError, payload)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
