package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/agronova/tracker-backend/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "TRACKER_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability and
// auditing. ActorID is set only when ActorKind is user; it is the value
// stamped on audit transactions for mutations performed in the request.
type AuditInfo struct {
	ActorKind ActorKind
	ActorID   *int64
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo from authenticated user credentials and a request ID.
// Returns an error when creds are nil or carry no user id.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.ID == 0 {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	actorID := creds.ID
	return AuditInfo{
		ActorKind: ActorKindUser,
		ActorID:   &actorID,
		RequestID: requestID,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests (e.g., login) where no user ID exists yet.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background/CLI operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
