package core

import (
	"context"
	"strconv"
)

// BillID builds the identifier of a billed organisation expense by
// concatenating the token owner's id, the project id, the token id and the
// per-token sequence number.
func BillID(userID, projectID, tokenID, seq int64) string {
	b := make([]byte, 0, 32)
	b = strconv.AppendInt(b, userID, 10)
	b = strconv.AppendInt(b, projectID, 10)
	b = strconv.AppendInt(b, tokenID, 10)
	b = strconv.AppendInt(b, seq, 10)
	return string(b)
}

// BillSequencer reserves the next bill sequence number for a token within
// one organisation. Concurrent callers never receive the same value.
type BillSequencer interface {
	Next(ctx context.Context, tokenID, orgID int64) (int64, error)
}
