package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"rostersync/internal/model"
	"rostersync/internal/repo"
	"rostersync/internal/roster"
)

// stopPollInterval is how many feed rows pass between stop-flag reads.
const stopPollInterval = 100

// errSampleDone terminates a sample load once the row cap is reached.
var errSampleDone = errors.New("sample limit reached")

// Loader ingests one CSV entity stream into line-level records, computing the
// load delta for each row against stored state.
type Loader struct {
	repo      *repo.DistrictRepo
	logger    *logrus.Entry
	chunkSize int
	maxRows   int // 0 means unlimited; LoadSample caps this
}

// NewLoader creates a loader for one district pass.
func NewLoader(r *repo.DistrictRepo, chunkSize, maxRows int, logger *logrus.Entry) *Loader {
	return &Loader{
		repo:      r,
		logger:    logger.WithField("component", "loader"),
		chunkSize: chunkSize,
		maxRows:   maxRows,
	}
}

// LoadAll loads every entity table from the district's CSV folder in the
// strict dependency order.
func (l *Loader) LoadAll(csvFolder string) error {
	for _, table := range model.AllTables() {
		path := filepath.Join(csvFolder, roster.FileName(table))
		if err := l.LoadFile(table, path); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile streams one CSV file and upserts a line per record. A missing
// file or malformed row is stage-fatal: it must not be mistaken for "all
// records deleted" or silently skipped.
func (l *Loader) LoadFile(table model.CSVTable, path string) error {
	l.logger.Infof("Loading %s from %s", table, path)
	now := time.Now().UTC()
	rows := 0

	err := roster.Stream(path, table, func(rec roster.Record) error {
		rows++
		if l.maxRows > 0 && rows > l.maxRows {
			return errSampleDone
		}
		if rows%stopPollInterval == 0 {
			stop, err := l.repo.GetStopFlag()
			if err != nil {
				return err
			}
			if stop {
				return ErrStopRequested
			}
		}
		if err := l.loadRecord(table, rec, now); err != nil {
			// Attach the offending record so a feed-format regression is
			// diagnosable from the history error alone.
			raw, _ := json.Marshal(rec)
			return fmt.Errorf("record %s: %w", string(raw), err)
		}
		return l.repo.Committer().InvokeIfChunk(l.chunkSize)
	})

	if flushErr := l.repo.Committer().InvokeIfAny(); flushErr != nil && err == nil {
		err = flushErr
	}

	if err == nil || errors.Is(err, errSampleDone) {
		l.logger.Infof("Loaded %s (%d rows)", table, rows)
		return nil
	}
	return NewStageError(model.StageLoad, "load of %s: %w", table, err)
}

func (l *Loader) loadRecord(table model.CSVTable, rec roster.Record, now time.Time) error {
	recDeleted := rec.Deleted()

	existing, err := l.repo.GetLine(table, rec.Key())
	if err != nil {
		return err
	}

	if u, ok := rec.(*roster.User); ok {
		if err := roster.NormalizeUser(u); err != nil {
			return err
		}
		if !u.Enabled() {
			if existing == nil {
				// Disabled and never seen: not an error, not a line.
				return nil
			}
			recDeleted = true
		}
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	changed := existing != nil && string(existing.RawData) != string(raw)

	switch Transition(existing, recDeleted, changed) {
	case DecisionSkip:
		// Never existed, already gone. Still counted as a deletion.
		return l.repo.BumpCounters(0, 0, 1, 1)

	case DecisionAdd:
		line := &model.DataSyncLine{
			Table:      table,
			SourcedID:  rec.Key(),
			RawData:    raw,
			LoadStatus: model.LoadStatusAdded,
			SyncStatus: model.SyncStatusLoaded,
			LastSeen:   now,
		}
		l.repo.CreateLine(line)
		return l.repo.BumpCounters(1, 0, 0, 1)

	case DecisionNoChange:
		// SyncStatus is kept: an applied line flipped back to Loaded would
		// queue an unchanged row for another push, and a loaded line stays
		// visible to the next analyze.
		quiet := existing.LoadStatus == model.LoadStatusNoChange
		existing.LoadStatus = model.LoadStatusNoChange
		existing.RawData = raw
		existing.LastSeen = now
		if quiet {
			l.repo.TouchLine(existing)
		} else {
			l.repo.StageLine(existing)
		}
		return l.repo.BumpCounters(0, 0, 0, 1)

	case DecisionUntouched:
		// Identical payload but the line never made it past Loaded; leave
		// its statuses alone so the pending change is not masked.
		existing.LastSeen = now
		l.repo.TouchLine(existing)
		return l.repo.BumpCounters(0, 0, 0, 1)

	case DecisionDelete:
		if existing.LoadStatus == model.LoadStatusDeleted {
			// Tombstone seen again; nothing new to record.
			existing.LastSeen = now
			l.repo.TouchLine(existing)
			return l.repo.BumpCounters(0, 0, 0, 1)
		}
		existing.LoadStatus = model.LoadStatusDeleted
		existing.SyncStatus = model.SyncStatusLoaded
		existing.IncludeInSync = false
		existing.RawData = raw
		existing.LastSeen = now
		l.repo.StageLine(existing)
		return l.repo.BumpCounters(0, 0, 1, 1)

	case DecisionKeepAdded:
		existing.RawData = raw
		existing.SyncStatus = model.SyncStatusLoaded
		existing.LastSeen = now
		l.repo.StageLine(existing)
		return l.repo.BumpCounters(1, 0, 0, 1)

	case DecisionModify:
		existing.LoadStatus = model.LoadStatusModified
		existing.SyncStatus = model.SyncStatusLoaded
		existing.RawData = raw
		existing.LastSeen = now
		l.repo.StageLine(existing)
		return l.repo.BumpCounters(0, 1, 0, 1)
	}

	return nil
}
