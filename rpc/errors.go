package rpc

import (
	"fmt"

	"github.com/vultisig/octra-wallet/internal/types"
)

// RPCError is a non-2xx answer from the upstream provider.
type RPCError struct {
	Status int
	Body   string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error: status %d: %s", e.Status, e.Body)
}

func (e *RPCError) ErrorKind() types.ErrorKind {
	return types.KindUpstreamRejected
}

// Retryable reports whether another provider might answer differently.
func (e *RPCError) Retryable() bool {
	return e.Status >= 500 || e.Status == 429
}
