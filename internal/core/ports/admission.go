package ports

import (
	"context"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
)

// Admission is the full outcome of an admission check. Identity and DayKey
// let the HTTP layer settle the quota charge after the downstream call.
type Admission struct {
	Identity domain.ClientIdentity
	DayKey   string
	Decision domain.Decision
}

// AdmissionController produces one admit/deny verdict per inbound request.
type AdmissionController interface {
	Admit(ctx context.Context, req domain.RequestContext, route string) Admission
}
