package server

import (
	"encoding/json"
	"net/http"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
)

func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["success"] = true
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = &apierr.Error{Kind: apierr.InternalError, Message: err.Error()}
	}
	w.WriteHeader(statusForKind(apiErr.Kind))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   apiErr.Message,
		"kind":    string(apiErr.Kind),
	})
}

func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.InvalidInput, apierr.InvalidBlock, apierr.StaleBlock, apierr.InvalidPool:
		return http.StatusBadRequest
	case apierr.AuthError:
		return http.StatusUnauthorized
	case apierr.NotAHolder, apierr.NotRegisteredMiner:
		return http.StatusForbidden
	case apierr.RateLimited:
		return http.StatusTooManyRequests
	case apierr.CooldownActive:
		return http.StatusConflict
	case apierr.VersionIncompatible:
		return http.StatusUpgradeRequired
	case apierr.DatabaseError, apierr.UpstreamError, apierr.InternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
