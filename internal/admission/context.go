package admission

import (
	"context"

	"github.com/albri/mdplane-sub004/internal/ratelimit"
)

func setOperation(ctx context.Context, op ratelimit.Operation) context.Context {
	return context.WithValue(ctx, ctxOperation, op)
}

func setIdentifier(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxIdentifier, id)
}

// Operation retrieves the operation classified for this request by Middleware.
func Operation(ctx context.Context) (ratelimit.Operation, bool) {
	v, ok := ctx.Value(ctxOperation).(ratelimit.Operation)
	return v, ok
}

// Identifier retrieves the admission identifier selected for this request.
func Identifier(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxIdentifier).(string)
	return v, ok
}
