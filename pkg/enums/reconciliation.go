package enums

import "slices"

// ReconciliationStatus tracks whether a payment discrepancy is still being worked.
type ReconciliationStatus string

const (
	ReconciliationStatusOpen     ReconciliationStatus = "open"
	ReconciliationStatusResolved ReconciliationStatus = "resolved"
)

func (s ReconciliationStatus) String() string {
	return string(s)
}

// ReconciliationReason records why the local and gateway views may disagree.
type ReconciliationReason string

const (
	// ReconciliationReasonCommitFailed: the gateway charged but the local completion did not commit.
	ReconciliationReasonCommitFailed ReconciliationReason = "commit_failed"
	// ReconciliationReasonOutcomeUnknown: the charge call timed out or its response was lost.
	ReconciliationReasonOutcomeUnknown ReconciliationReason = "outcome_unknown"
)

func (r ReconciliationReason) String() string {
	return string(r)
}

// ReconciliationResolution is the final verdict on a case.
type ReconciliationResolution string

const (
	ReconciliationResolutionPaid       ReconciliationResolution = "paid"
	ReconciliationResolutionNotCharged ReconciliationResolution = "not_charged"
)

var validReconciliationResolutions = []ReconciliationResolution{
	ReconciliationResolutionPaid,
	ReconciliationResolutionNotCharged,
}

func (r ReconciliationResolution) String() string {
	return string(r)
}

func (r ReconciliationResolution) IsValid() bool {
	return slices.Contains(validReconciliationResolutions, r)
}

// ParseReconciliationResolution converts raw input into a ReconciliationResolution.
func ParseReconciliationResolution(value string) (ReconciliationResolution, error) {
	return parse("reconciliation resolution", value, validReconciliationResolutions)
}
