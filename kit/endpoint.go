package kit

import "context"

// Endpoint is a transport-agnostic operation: decoded request in, response
// out. Both surfaces (chi handlers, MCP tools) terminate in one of these.
type Endpoint func(ctx context.Context, req any) (any, error)
