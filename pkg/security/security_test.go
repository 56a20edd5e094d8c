package security

import "testing"

func TestNoopReporterDoesNotPanic(t *testing.T) {
	var r Reporter = NoopReporter{}
	r.ReportKeyAccessDenied(ContextData{UserID: 42, SlotUUID: "11111111-2222-3333-4444-555555555555"})
}
