package claim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
)

// MaxMessageLen bounds the raw 5-field claim message length.
const MaxMessageLen = 1024

type fields struct {
	ethSig    string
	ethAddr   string
	voter     string
	block     int64
	ethSigner string
}

// parseMessage splits "ethSig|ethAddr|voter|block|ethSigner" per
// spec.md §4.6.
func parseMessage(message string) (fields, error) {
	if len(message) == 0 || len(message) > MaxMessageLen {
		return fields{}, apierr.New(apierr.InvalidInput, "message length out of bounds")
	}
	parts := strings.Split(message, "|")
	if len(parts) != 5 {
		return fields{}, apierr.New(apierr.InvalidInput, "malformed claim message: expected 5 pipe-separated fields")
	}

	block, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
	if err != nil || block < 0 {
		return fields{}, apierr.New(apierr.InvalidInput, "malformed block number")
	}

	f := fields{
		ethSig:    strings.TrimSpace(parts[0]),
		ethAddr:   strings.TrimSpace(parts[1]),
		voter:     strings.TrimSpace(parts[2]),
		block:     block,
		ethSigner: strings.TrimSpace(parts[4]),
	}
	if f.ethSig == "" || f.ethAddr == "" || f.voter == "" || f.ethSigner == "" {
		return fields{}, apierr.New(apierr.InvalidInput, "claim message fields must be non-empty")
	}
	return f, nil
}

func blockWindowError(block, current int64) error {
	if block > current {
		return apierr.New(apierr.InvalidBlock, fmt.Sprintf("block %d is ahead of current block %d", block, current))
	}
	return apierr.New(apierr.StaleBlock, fmt.Sprintf("block %d is more than %d blocks behind current block %d", block, BlockWindow, current))
}
