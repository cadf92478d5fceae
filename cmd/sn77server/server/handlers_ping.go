package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
	"github.com/CreativeBuilds/sn77-server/internal/version"
)

type pingRequest struct {
	Voter   string `json:"voter"`
	Message string `json:"message"`
}

// ping implements the validator health / version check of spec.md §6.
// message is `<block>|<major.minor.patch>`; block is accepted but not
// checked against the chain's current height, since ping is a liveness and
// version-compatibility probe, not a chain-state operation.
func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if !h.pingLimiter.Allow("ping_" + req.Voter) {
		writeError(w, apierr.New(apierr.RateLimited, "too many pings for this address"))
		return
	}

	parts := strings.SplitN(req.Message, "|", 2)
	if len(parts) != 2 {
		writeError(w, apierr.New(apierr.InvalidInput, "malformed ping message"))
		return
	}
	if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "ping block is not a valid integer"))
		return
	}
	clientVersion, err := version.Parse(parts[1])
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "malformed client version"))
		return
	}

	switch version.CheckPing(h.deps.Version, clientVersion) {
	case version.Incompatible:
		writeError(w, apierr.New(apierr.VersionIncompatible, "client version is incompatible with this server"))
	case version.NonMasterBranch:
		writeSuccess(w, map[string]any{"message": "client is on a non-master branch"})
	default:
		writeSuccess(w, nil)
	}
}
