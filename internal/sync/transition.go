package sync

import (
	"time"

	"rostersync/internal/model"
)

// LoadDecision is the output of the load diff for one feed record.
type LoadDecision int

const (
	// DecisionSkip: record never existed here and is already gone (or a
	// disabled brand-new user). No line is created.
	DecisionSkip LoadDecision = iota
	// DecisionAdd: first sighting, create the line as Added.
	DecisionAdd
	// DecisionNoChange: identical payload on a settled line, either already
	// applied or loaded and not yet promoted. LoadStatus becomes NoChange;
	// SyncStatus is kept.
	DecisionNoChange
	// DecisionUntouched: identical payload on a line mid-flight (ready to
	// apply, ready to enroll, or apply failed). Its pending statuses stay
	// untouched so the change is not masked; only LastSeen is bumped.
	DecisionUntouched
	// DecisionDelete: deletion marker on an existing line.
	DecisionDelete
	// DecisionKeepAdded: payload changed but the line is an unapplied Added;
	// an add that was never pushed is not downgraded to a modify.
	DecisionKeepAdded
	// DecisionModify: payload changed on an existing line.
	DecisionModify
)

// Transition is the explicit load state table over
// (existing line, deletion marker, payload changed).
func Transition(existing *model.DataSyncLine, deleted, changed bool) LoadDecision {
	if existing == nil {
		if deleted {
			return DecisionSkip
		}
		return DecisionAdd
	}

	if deleted {
		return DecisionDelete
	}

	if existing.LoadStatus == model.LoadStatusDeleted {
		// Resurrected record: whatever the payload looks like, it has to be
		// pushed again.
		return DecisionModify
	}

	if !changed {
		switch existing.SyncStatus {
		case model.SyncStatusApplied, model.SyncStatusLoaded:
			return DecisionNoChange
		}
		return DecisionUntouched
	}

	if existing.LoadStatus == model.LoadStatusAdded && existing.SyncStatus != model.SyncStatusApplied {
		return DecisionKeepAdded
	}
	return DecisionModify
}

// SweepVanished marks one vanished line deleted and excluded: a line last
// seen strictly before the run start missed the whole feed pass, whatever its
// table. Tombstones and lines the current feed touched are left alone.
// Reports whether the line changed.
func SweepVanished(line *model.DataSyncLine, runStart time.Time) bool {
	if !line.LastSeen.Before(runStart) || line.LoadStatus == model.LoadStatusDeleted {
		return false
	}
	line.LoadStatus = model.LoadStatusDeleted
	line.IncludeInSync = false
	return true
}

// IsUnappliedChange reports whether a line flagged for inclusion still has
// work to push: either its load status is not NoChange or it has not reached
// Applied yet.
func IsUnappliedChange(line *model.DataSyncLine) bool {
	if !line.IncludeInSync {
		return false
	}
	return line.LoadStatus != model.LoadStatusNoChange || line.SyncStatus != model.SyncStatusApplied
}
