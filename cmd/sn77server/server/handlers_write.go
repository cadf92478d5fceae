package server

import (
	"encoding/json"
	"net/http"
)

// updateVoteRequest is the body of POST /updateVotes, per spec.md §6: a
// Substrate-signed message carrying the voter's pool weights.
type updateVoteRequest struct {
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Voter     string `json:"voter"`
}

func (h *handlers) updateVotes(w http.ResponseWriter, r *http.Request) {
	var req updateVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	result, err := h.deps.Votes.Submit(r.Context(), clientIP(r), req.Signature, req.Message, req.Voter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"pools": result.Pools})
}

// claimAddressRequest is the body of POST /claimAddress, per spec.md §6:
// the dual-signed cross-chain identity claim payload.
type claimAddressRequest struct {
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Voter     string `json:"voter"`
}

func (h *handlers) claimAddress(w http.ResponseWriter, r *http.Request) {
	var req claimAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	result, err := h.deps.Claim.Submit(r.Context(), clientIP(r), req.Signature, req.Message, req.Voter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{
		"voter":          result.Voter,
		"external":       result.External,
		"already_exists": result.AlreadyExists,
	})
}
