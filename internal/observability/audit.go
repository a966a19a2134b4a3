package observability

import (
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AuditInput names the who/what/outcome of a security-relevant action.
// Fields must never contain decrypted tenant material or raw tokens.
type AuditInput struct {
	EventName   string
	ActorUserID string
	TenantRef   string
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string
	Reason      string
}

func ActorUserID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// EmitAudit writes one audit record tied to the request ID, plus any extra
// key/value pairs.
func EmitAudit(r *http.Request, in AuditInput, extra ...any) {
	attrs := []any{
		"event", in.EventName,
		"actor_user_id", in.ActorUserID,
		"tenant_ref", in.TenantRef,
		"target_type", in.TargetType,
		"target_id", in.TargetID,
		"action", in.Action,
		"outcome", in.Outcome,
		"reason", in.Reason,
		"request_id", chimiddleware.GetReqID(r.Context()),
	}
	attrs = append(attrs, extra...)
	events().InfoContext(r.Context(), "audit", attrs...)
}
