// Package security implements the key-storage provider's security-event
// reporter (spec.md §4.9): a single best-effort sink for key-access
// denial events.
package security

import (
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("security")

// ContextData names the user and slot a denied operation targeted.
type ContextData struct {
	UserID   uint32
	SlotUUID string
}

// Reporter receives key-access denial events. Implementations must not
// block the caller on a slow or unreachable downstream: reporting is
// best-effort and never changes the outcome of the denied operation.
type Reporter interface {
	ReportKeyAccessDenied(ctx ContextData)
}

// NoopReporter is the default reporter when telemetry is disabled
// (Server.idsmReporting = false).
type NoopReporter struct{}

func (NoopReporter) ReportKeyAccessDenied(ContextData) {}

var _ Reporter = NoopReporter{}
var _ Reporter = (*SNSReporter)(nil)
