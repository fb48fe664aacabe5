package reconcile

import "github.com/kairo-crm/intake/internal/model"

// Route picks the status an analyzed job moves to.
//
//	turbo     always processing
//	safe      always pending_review
//	balanced  pending_review when any row conflicts, processing otherwise
//
// Plain duplicates do not stop a balanced import: without a conflict the
// default action is an enrich update, which only fills empty fields.
// Unknown modes are treated as safe.
func Route(mode model.ImportMode, stats model.ImportStats) model.JobStatus {
	switch mode {
	case model.ModeTurbo:
		return model.StatusProcessing
	case model.ModeBalanced:
		if stats.ConflictCount > 0 {
			return model.StatusPendingReview
		}
		return model.StatusProcessing
	default:
		return model.StatusPendingReview
	}
}
