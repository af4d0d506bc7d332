package repo

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rostersync/internal/model"
)

// pendingDetail defers the history/line foreign keys until flush time, when
// freshly created lines have their ids assigned.
type pendingDetail struct {
	line   *model.DataSyncLine
	detail model.DataSyncHistoryDetail
}

// DistrictRepo is a per-district data access facade. Line mutations are
// buffered and written in chunks through the ChunkedCommitter; stage
// bookkeeping (history timestamps, district status) writes immediately.
type DistrictRepo struct {
	db       *gorm.DB
	logger   *logrus.Entry
	district *model.District

	committer      *ChunkedCommitter
	currentHistory *model.DataSyncHistory
	historyDirty   bool
	districtDirty  bool

	newLines       []*model.DataSyncLine
	dirtyLines     map[int]*model.DataSyncLine
	pendingDetails []pendingDetail
}

// NewDistrictRepo creates a repository scoped to one district.
func NewDistrictRepo(db *gorm.DB, district *model.District, logger *logrus.Entry) *DistrictRepo {
	r := &DistrictRepo{
		db:         db,
		logger:     logger.WithField("district", district.ID),
		district:   district,
		dirtyLines: map[int]*model.DataSyncLine{},
	}
	r.committer = NewChunkedCommitter(r.Flush)
	return r
}

// District returns the owning district row.
func (r *DistrictRepo) District() *model.District {
	return r.district
}

// Committer returns the chunked commit helper bound to this repository.
func (r *DistrictRepo) Committer() *ChunkedCommitter {
	return r.committer
}

// Reset drops all buffered mutations and cached state. Called when a stage's
// persistence scope is torn down so a failed stage never leaks a stale entity
// graph into the next one.
func (r *DistrictRepo) Reset() {
	r.currentHistory = nil
	r.historyDirty = false
	r.districtDirty = false
	r.newLines = nil
	r.dirtyLines = map[int]*model.DataSyncLine{}
	r.pendingDetails = nil
	r.committer = NewChunkedCommitter(r.Flush)
}

// GetLine fetches one line by table and sourcedId, nil when absent.
func (r *DistrictRepo) GetLine(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error) {
	var line model.DataSyncLine
	err := r.db.Where("district_id = ? AND csv_table = ? AND sourced_id = ?",
		r.district.ID, table, sourcedID).First(&line).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query line %s/%s: %w", table, sourcedID, err)
	}
	return &line, nil
}

// LineMap loads a whole entity table into memory keyed by sourcedId. Only
// used for the small tables (orgs, terms, courses, classes).
func (r *DistrictRepo) LineMap(table model.CSVTable) (map[string]*model.DataSyncLine, error) {
	var lines []*model.DataSyncLine
	if err := r.db.Where("district_id = ? AND csv_table = ?", r.district.ID, table).
		Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s lines: %w", table, err)
	}
	m := make(map[string]*model.DataSyncLine, len(lines))
	for _, line := range lines {
		m[line.SourcedID] = line
	}
	return m, nil
}

// ForEachLine streams a table's lines in batches of batchSize.
func (r *DistrictRepo) ForEachLine(table model.CSVTable, batchSize int, fn func(line *model.DataSyncLine) error) error {
	var batch []model.DataSyncLine
	result := r.db.Where("district_id = ? AND csv_table = ?", r.district.ID, table).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := fn(&batch[i]); err != nil {
					return err
				}
			}
			return nil
		})
	return result.Error
}

// CreateLine buffers a brand-new line plus its audit detail.
func (r *DistrictRepo) CreateLine(line *model.DataSyncLine) {
	line.DistrictID = r.district.ID
	r.newLines = append(r.newLines, line)
	r.stageDetail(line)
	r.committer.Increment()
}

// StageLine buffers an update to an existing line plus its audit detail.
func (r *DistrictRepo) StageLine(line *model.DataSyncLine) {
	line.Touch()
	if line.ID != 0 {
		r.dirtyLines[line.ID] = line
	}
	r.stageDetail(line)
	r.committer.Increment()
}

// TouchLine buffers a LastSeen-only update with no audit detail, for records
// that appeared in the feed but changed nothing sync-relevant.
func (r *DistrictRepo) TouchLine(line *model.DataSyncLine) {
	if line.ID != 0 {
		r.dirtyLines[line.ID] = line
	}
	r.committer.Increment()
}

func (r *DistrictRepo) stageDetail(line *model.DataSyncLine) {
	r.pendingDetails = append(r.pendingDetails, pendingDetail{
		line: line,
		detail: model.DataSyncHistoryDetail{
			DistrictID:    r.district.ID,
			Table:         line.Table,
			SourcedID:     line.SourcedID,
			LoadStatus:    line.LoadStatus,
			SyncStatus:    line.SyncStatus,
			IncludeInSync: line.IncludeInSync,
			RawData:       line.RawData,
		},
	})
}

// BumpCounters accumulates run counters on the current history row.
func (r *DistrictRepo) BumpCounters(added, modified, deleted, rows int) error {
	h, err := r.CurrentHistory()
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	h.NumAdded += added
	h.NumModified += modified
	h.NumDeleted += deleted
	h.NumRows += rows
	r.historyDirty = true
	return nil
}

// MarkDistrictDirty schedules the district row for the next flush.
func (r *DistrictRepo) MarkDistrictDirty() {
	r.district.Touch()
	r.districtDirty = true
}

// Flush writes all buffered mutations in one transaction and invalidates the
// cached history.
func (r *DistrictRepo) Flush() error {
	if len(r.newLines) == 0 && len(r.dirtyLines) == 0 && len(r.pendingDetails) == 0 &&
		!r.historyDirty && !r.districtDirty {
		return nil
	}

	historyID := 0
	if r.currentHistory != nil {
		historyID = r.currentHistory.ID
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, line := range r.newLines {
			if err := tx.Create(line).Error; err != nil {
				return fmt.Errorf("failed to create line %s/%s: %w", line.Table, line.SourcedID, err)
			}
		}
		for _, line := range r.dirtyLines {
			if err := tx.Save(line).Error; err != nil {
				return fmt.Errorf("failed to save line %s/%s: %w", line.Table, line.SourcedID, err)
			}
		}
		if len(r.pendingDetails) > 0 {
			details := make([]model.DataSyncHistoryDetail, 0, len(r.pendingDetails))
			for _, pd := range r.pendingDetails {
				pd.detail.LineID = pd.line.ID
				pd.detail.HistoryID = historyID
				details = append(details, pd.detail)
			}
			if err := tx.Create(&details).Error; err != nil {
				return fmt.Errorf("failed to create history details: %w", err)
			}
		}
		if r.historyDirty && r.currentHistory != nil {
			if err := tx.Save(r.currentHistory).Error; err != nil {
				return fmt.Errorf("failed to save history: %w", err)
			}
		}
		if r.districtDirty {
			if err := tx.Save(r.district).Error; err != nil {
				return fmt.Errorf("failed to save district: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.newLines = nil
	r.dirtyLines = map[int]*model.DataSyncLine{}
	r.pendingDetails = nil
	r.historyDirty = false
	r.districtDirty = false
	// Cached history is invalidated on every commit; the next access
	// re-reads it from the store.
	r.currentHistory = nil
	return nil
}

// CurrentHistory returns the latest history row for the district, cached per
// repository instance until the next commit. Returns nil when the district
// has no history yet.
func (r *DistrictRepo) CurrentHistory() (*model.DataSyncHistory, error) {
	if r.currentHistory != nil {
		return r.currentHistory, nil
	}
	var h model.DataSyncHistory
	err := r.db.Where("district_id = ?", r.district.ID).Order("id DESC").First(&h).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query current history: %w", err)
	}
	r.currentHistory = &h
	return r.currentHistory, nil
}

// PushHistory creates and caches a fresh history row.
func (r *DistrictRepo) PushHistory() (*model.DataSyncHistory, error) {
	h := &model.DataSyncHistory{DistrictID: r.district.ID}
	if err := r.db.Create(h).Error; err != nil {
		return nil, fmt.Errorf("failed to create history: %w", err)
	}
	r.currentHistory = h
	return h, nil
}

// RecordProcessingStart stamps the stage's start time. A stage that already
// has a start time on the current history gets a fresh history row, so
// re-entrant runs never overwrite a completed stage's timing.
func (r *DistrictRepo) RecordProcessingStart(stage model.ProcessingStage) error {
	h, err := r.CurrentHistory()
	if err != nil {
		return err
	}
	if h == nil || h.StageStarted(stage) {
		if h, err = r.PushHistory(); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	switch stage {
	case model.StageLoad:
		h.LoadStarted = &now
		r.district.ProcessingStatus = model.ProcessingStatusLoading
	case model.StageAnalyze:
		h.AnalyzeStarted = &now
		r.district.ProcessingStatus = model.ProcessingStatusAnalyzing
	case model.StageApply:
		h.ApplyStarted = &now
		r.district.ProcessingStatus = model.ProcessingStatusApplying
	}
	r.district.Touch()

	if err := r.db.Save(h).Error; err != nil {
		return fmt.Errorf("failed to record %s start: %w", stage, err)
	}
	if err := r.db.Save(r.district).Error; err != nil {
		return fmt.Errorf("failed to update district status: %w", err)
	}
	return nil
}

// RecordProcessingStop stamps the stage's completion time.
func (r *DistrictRepo) RecordProcessingStop(stage model.ProcessingStage) error {
	h, err := r.CurrentHistory()
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("no current history to stop stage %s", stage)
	}

	now := time.Now().UTC()
	switch stage {
	case model.StageLoad:
		h.LoadCompleted = &now
		r.district.ProcessingStatus = model.ProcessingStatusLoadingDone
	case model.StageAnalyze:
		h.AnalyzeCompleted = &now
		r.district.ProcessingStatus = model.ProcessingStatusAnalyzingDone
	case model.StageApply:
		h.ApplyCompleted = &now
		r.district.ProcessingStatus = model.ProcessingStatusApplyingDone
	}
	r.district.Touch()

	if err := r.db.Save(h).Error; err != nil {
		return fmt.Errorf("failed to record %s stop: %w", stage, err)
	}
	if err := r.db.Save(r.district).Error; err != nil {
		return fmt.Errorf("failed to update district status: %w", err)
	}
	return nil
}

// RecordProcessingError records a stage-fatal error on the current history.
func (r *DistrictRepo) RecordProcessingError(message string, stage model.ProcessingStage) error {
	h, err := r.CurrentHistory()
	if err != nil {
		return err
	}
	if h == nil {
		if h, err = r.PushHistory(); err != nil {
			return err
		}
	}

	if len(message) > 2048 {
		message = message[:2048]
	}
	switch stage {
	case model.StageLoad:
		h.LoadError = message
	case model.StageAnalyze:
		h.AnalyzeError = message
	case model.StageApply:
		h.ApplyError = message
	}

	r.logger.Errorf("Stage %s failed: %s", stage, message)
	if err := r.db.Save(h).Error; err != nil {
		return fmt.Errorf("failed to record %s error: %w", stage, err)
	}
	return nil
}

// GetStopFlag re-reads the district's stop flag directly from the store so a
// user-initiated stop is visible to a long-running loop immediately.
func (r *DistrictRepo) GetStopFlag() (bool, error) {
	var stop bool
	err := r.db.Model(&model.District{}).
		Where("id = ?", r.district.ID).
		Pluck("stop_current_action", &stop).Error
	if err != nil {
		return false, fmt.Errorf("failed to read stop flag: %w", err)
	}
	return stop, nil
}

// ForEachVanished streams the district's lines last seen before the given
// time, across all tables, in batches of batchSize. The analyzer decides what
// happens to each.
func (r *DistrictRepo) ForEachVanished(since time.Time, batchSize int, fn func(line *model.DataSyncLine) error) error {
	var batch []model.DataSyncLine
	result := r.db.Where("district_id = ? AND last_seen < ?", r.district.ID, since).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := fn(&batch[i]); err != nil {
					return err
				}
			}
			return nil
		})
	if result.Error != nil {
		return fmt.Errorf("failed to scan vanished lines: %w", result.Error)
	}
	return nil
}

// SaveApplied writes one apply outcome and its audit detail immediately, in a
// session of its own. Apply workers run concurrently and must not share the
// repository's buffered stage writes.
func (r *DistrictRepo) SaveApplied(line *model.DataSyncLine, detail *model.DataSyncHistoryDetail) error {
	session := r.db.Session(&gorm.Session{NewDB: true})
	return session.Transaction(func(tx *gorm.DB) error {
		line.Touch()
		if err := tx.Save(line).Error; err != nil {
			return fmt.Errorf("failed to save line %s/%s: %w", line.Table, line.SourcedID, err)
		}
		if err := tx.Create(detail).Error; err != nil {
			return fmt.Errorf("failed to create history detail for %s/%s: %w", line.Table, line.SourcedID, err)
		}
		return nil
	})
}

func (r *DistrictRepo) applyScope(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int) *gorm.DB {
	q := r.db.Model(&model.DataSyncLine{}).
		Where("district_id = ? AND csv_table = ? AND include_in_sync = ? AND load_status <> ? AND sync_status IN ?",
			r.district.ID, table, true, model.LoadStatusDeleted, statuses)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	return q
}

// CountApplyRemaining counts lines still eligible for the apply stage,
// ignoring lines already skipped this pass for a missing dependency.
func (r *DistrictRepo) CountApplyRemaining(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int) (int64, error) {
	var count int64
	if err := r.applyScope(table, statuses, excludeIDs).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count remaining lines: %w", err)
	}
	return count, nil
}

// SelectApplyBatch selects up to limit eligible lines, retrying failures
// before fresh work with a randomized tiebreak so one pathological record
// cannot starve a batch.
func (r *DistrictRepo) SelectApplyBatch(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int, limit int) ([]model.DataSyncLine, error) {
	var lines []model.DataSyncLine
	err := r.applyScope(table, statuses, excludeIDs).
		Order("sync_status = 'apply_failed' DESC, RAND()").
		Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select apply batch: %w", err)
	}
	return lines, nil
}

// Filters returns the district's active filters of one type.
func (r *DistrictRepo) Filters(filterType string) ([]model.DistrictFilter, error) {
	var filters []model.DistrictFilter
	err := r.db.Where("district_id = ? AND filter_type = ? AND should_apply = ?",
		r.district.ID, filterType, true).Find(&filters).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s filters: %w", filterType, err)
	}
	return filters, nil
}
