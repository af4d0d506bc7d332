package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"rostersync/internal/lmsclient"
	"rostersync/internal/model"
	"rostersync/internal/roster"
)

// API is the outbound LMS surface the applier pushes lines through.
type API interface {
	Apply(ctx context.Context, url, apiKey string, req *lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error)
}

// applyStore is the slice of the district repository the apply stage drives.
// *repo.DistrictRepo satisfies it; SaveApplied must be safe for concurrent
// workers.
type applyStore interface {
	District() *model.District
	CurrentHistory() (*model.DataSyncHistory, error)
	GetStopFlag() (bool, error)
	CountApplyRemaining(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int) (int64, error)
	SelectApplyBatch(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int, limit int) ([]model.DataSyncLine, error)
	GetLine(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error)
	SaveApplied(line *model.DataSyncLine, detail *model.DataSyncHistoryDetail) error
}

// Applier pushes eligible lines to the district's LMS, one entity table at a
// time in dependency order, fanning each batch out over a bounded worker pool.
type Applier struct {
	store     applyStore
	api       API
	logger    *logrus.Entry
	batchSize int
	workers   int
	builders  map[model.CSVTable]payloadBuilder
	nces      *ncesResolver

	mu        sync.Mutex
	skipped   map[int]struct{}
	historyID int
}

// NewApplier creates an applier for one district pass. The worker count is
// parallelMultiplier times the CPU count.
func NewApplier(store applyStore, api API, batchSize, parallelMultiplier int, ncesFallback map[string]string, logger *logrus.Entry) *Applier {
	workers := parallelMultiplier * runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	district := store.District()
	return &Applier{
		store:     store,
		api:       api,
		logger:    logger.WithField("component", "applier"),
		batchSize: batchSize,
		workers:   workers,
		builders:  payloadBuilders(district),
		nces:      newNCESResolver(district.NCESDistrictID, ncesFallback),
		skipped:   map[int]struct{}{},
	}
}

// ApplyAll walks the entity tables in strict dependency order. A table is
// drained completely before the next one starts so its target ids exist when
// dependents need them.
func (a *Applier) ApplyAll(ctx context.Context) error {
	for _, table := range model.AllTables() {
		if err := a.ApplyLines(ctx, table); err != nil {
			return err
		}
	}
	if n := len(a.skipped); n > 0 {
		a.logger.Warnf("Apply pass left %d lines pending on unresolved dependencies", n)
	}
	return nil
}

// ApplyLines drains one table. Each iteration counts the remaining eligible
// lines, selects a batch and pushes it; two consecutive iterations with the
// same nonzero count mean no line can make progress and the stage aborts.
func (a *Applier) ApplyLines(ctx context.Context, table model.CSVTable) error {
	statuses := []model.SyncStatus{model.SyncStatusReadyToApply, model.SyncStatusApplyFailed}
	if table == model.TableUsers {
		statuses = append(statuses, model.SyncStatusReadyToEnroll)
	}

	if h, err := a.store.CurrentHistory(); err != nil {
		return NewStageError(model.StageApply, "%w", err)
	} else if h != nil {
		a.historyID = h.ID
	}

	builder := a.builders[table]
	endpoint := a.endpointURL(table)
	prev := int64(-1)

	for {
		if err := ctx.Err(); err != nil {
			return NewStageError(model.StageApply, "%w", err)
		}
		stop, err := a.store.GetStopFlag()
		if err != nil {
			return NewStageError(model.StageApply, "%w", err)
		}
		if stop {
			return ErrStopRequested
		}

		remaining, err := a.store.CountApplyRemaining(table, statuses, a.skippedIDs())
		if err != nil {
			return NewStageError(model.StageApply, "%w", err)
		}
		if remaining == 0 {
			return nil
		}
		if remaining == prev {
			return NewStageError(model.StageApply,
				"%s stalled with %d lines unable to make progress", table, remaining)
		}
		prev = remaining

		batch, err := a.store.SelectApplyBatch(table, statuses, a.skippedIDs(), a.batchSize)
		if err != nil {
			return NewStageError(model.StageApply, "%w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		a.logger.Infof("Applying %s batch of %d (%d remaining)", table, len(batch), remaining)
		if err := a.processBatch(ctx, table, endpoint, builder, batch); err != nil {
			return NewStageError(model.StageApply, "%w", err)
		}
	}
}

// processBatch fans the batch out over the worker pool. Only infrastructure
// errors propagate; a rejected or unreachable record is recorded on its line
// and the batch continues.
func (a *Applier) processBatch(ctx context.Context, table model.CSVTable, endpoint string, builder payloadBuilder, batch []model.DataSyncLine) error {
	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, a.workers)
		errMu    sync.Mutex
		firstErr error
	)

	for i := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(line model.DataSyncLine) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := a.applyLine(ctx, table, endpoint, builder, &line); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(batch[i])
	}
	wg.Wait()
	return firstErr
}

// applyLine pushes one line through the LMS and persists the outcome. A user
// already past the push step resumes at the enrollment call.
func (a *Applier) applyLine(ctx context.Context, table model.CSVTable, endpoint string, builder payloadBuilder, line *model.DataSyncLine) error {
	if table == model.TableUsers && line.SyncStatus == model.SyncStatusReadyToEnroll {
		return a.enrollUser(ctx, line)
	}

	payload, err := builder(line, a.lookup)
	if errors.Is(err, errSkipDependency) {
		a.markSkipped(line.ID)
		return nil
	}
	if err != nil {
		return a.recordFailure(line, "payload_error", err.Error())
	}

	district := a.store.District()
	resp, err := a.api.Apply(ctx, endpoint, district.APIKey, &lmsclient.ApplyRequest{
		DistrictID:   district.ID,
		DistrictName: district.Name,
		Table:        string(table),
		SourcedID:    line.SourcedID,
		TargetID:     line.TargetID,
		LastSeen:     line.LastSeen,
		LoadStatus:   string(line.LoadStatus),
		Data:         payload,
	})
	if err != nil {
		return a.recordFailure(line, "transport_error", err.Error())
	}

	// The response owns the error fields either way; success overwrites
	// them with its empty values.
	line.Error = resp.ErrorMessage
	line.ErrorCode = resp.ErrorCode
	if resp.TargetID != "" {
		line.TargetID = &resp.TargetID
	}

	if !resp.Success {
		line.SyncStatus = model.SyncStatusApplyFailed
		return a.saveLine(line)
	}

	if table == model.TableUsers {
		line.SyncStatus = model.SyncStatusReadyToEnroll
		if err := a.saveLine(line); err != nil {
			return err
		}
		return a.enrollUser(ctx, line)
	}

	line.SyncStatus = model.SyncStatusApplied
	return a.saveLine(line)
}

// enrollUser files the applied user into their school on the LMS side, keyed
// by the school's NCES id. A school that cannot be resolved parks the user in
// ready_to_enroll for a later pass instead of failing it.
func (a *Applier) enrollUser(ctx context.Context, line *model.DataSyncLine) error {
	var user roster.User
	if err := json.Unmarshal(line.RawData, &user); err != nil {
		return a.recordFailure(line, "payload_error",
			fmt.Sprintf("failed to parse user %s: %v", line.SourcedID, err))
	}

	orgs := splitList(user.OrgSourcedIDs)
	if len(orgs) == 0 {
		a.markSkipped(line.ID)
		return nil
	}
	orgLine, err := a.lookup(model.TableOrgs, orgs[0])
	if err != nil {
		return err
	}
	if orgLine == nil || orgLine.TargetID == nil {
		a.markSkipped(line.ID)
		return nil
	}

	var org roster.Org
	if err := json.Unmarshal(orgLine.RawData, &org); err != nil {
		return a.recordFailure(line, "payload_error",
			fmt.Sprintf("failed to parse org %s: %v", orgLine.SourcedID, err))
	}

	a.mu.Lock()
	ncesID, ok := a.nces.Resolve(&org)
	a.mu.Unlock()
	if !ok {
		a.logger.Warnf("No NCES id for school %s (%s); user %s stays pending",
			org.SourcedID, org.Name, line.SourcedID)
		a.markSkipped(line.ID)
		return nil
	}

	district := a.store.District()
	data, err := json.Marshal(struct {
		UserSourcedID   string `json:"userSourcedId"`
		UserTargetID    string `json:"userTargetId"`
		SchoolSourcedID string `json:"schoolSourcedId"`
		SchoolTargetID  string `json:"schoolTargetId"`
		NCESSchoolID    string `json:"ncesSchoolId"`
		Role            string `json:"role"`
	}{
		UserSourcedID:   line.SourcedID,
		UserTargetID:    derefString(line.TargetID),
		SchoolSourcedID: org.SourcedID,
		SchoolTargetID:  derefString(orgLine.TargetID),
		NCESSchoolID:    ncesID,
		Role:            user.Role,
	})
	if err != nil {
		return a.recordFailure(line, "payload_error", err.Error())
	}

	resp, err := a.api.Apply(ctx, a.enrollURL(), district.APIKey, &lmsclient.ApplyRequest{
		DistrictID:   district.ID,
		DistrictName: district.Name,
		Table:        "schoolEnrollment",
		SourcedID:    line.SourcedID,
		TargetID:     line.TargetID,
		LastSeen:     line.LastSeen,
		LoadStatus:   string(line.LoadStatus),
		Data:         data,
	})
	if err != nil {
		return a.recordFailure(line, "transport_error", err.Error())
	}

	line.Error = resp.ErrorMessage
	line.ErrorCode = resp.ErrorCode
	if !resp.Success {
		line.SyncStatus = model.SyncStatusApplyFailed
		return a.saveLine(line)
	}
	line.SyncStatus = model.SyncStatusApplied
	return a.saveLine(line)
}

// recordFailure marks a line failed with the given code and message. The line
// stays eligible for reselection; stall detection bounds the retries.
func (a *Applier) recordFailure(line *model.DataSyncLine, code, message string) error {
	if len(message) > 2048 {
		message = message[:2048]
	}
	line.SyncStatus = model.SyncStatusApplyFailed
	line.Error = message
	line.ErrorCode = code
	return a.saveLine(line)
}

// saveLine persists the line and its audit detail.
func (a *Applier) saveLine(line *model.DataSyncLine) error {
	detail := &model.DataSyncHistoryDetail{
		HistoryID:     a.historyID,
		LineID:        line.ID,
		DistrictID:    line.DistrictID,
		Table:         line.Table,
		SourcedID:     line.SourcedID,
		LoadStatus:    line.LoadStatus,
		SyncStatus:    line.SyncStatus,
		IncludeInSync: line.IncludeInSync,
		RawData:       line.RawData,
	}
	return a.store.SaveApplied(line, detail)
}

// lookup resolves sibling lines for dependency targets.
func (a *Applier) lookup(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error) {
	return a.store.GetLine(table, sourcedID)
}

// markSkipped parks a line for the rest of the pass so its unresolved
// dependency never registers as stalled progress.
func (a *Applier) markSkipped(id int) {
	a.mu.Lock()
	a.skipped[id] = struct{}{}
	a.mu.Unlock()
}

func (a *Applier) skippedIDs() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int, 0, len(a.skipped))
	for id := range a.skipped {
		ids = append(ids, id)
	}
	return ids
}

func (a *Applier) endpointURL(table model.CSVTable) string {
	district := a.store.District()
	var path string
	switch table {
	case model.TableOrgs:
		path = district.OrgEndpoint
	case model.TableTerms:
		path = district.TermEndpoint
	case model.TableCourses:
		path = district.CourseEndpoint
	case model.TableClasses:
		path = district.ClassEndpoint
	case model.TableUsers:
		path = district.UserEndpoint
	case model.TableEnrollments:
		path = district.EnrollEndpoint
	}
	return strings.TrimRight(district.TargetBaseURL, "/") + path
}

func (a *Applier) enrollURL() string {
	district := a.store.District()
	return strings.TrimRight(district.TargetBaseURL, "/") + district.EnrollEndpoint
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
