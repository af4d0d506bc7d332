package sync

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rostersync/internal/model"
	"rostersync/internal/repo"
	"rostersync/internal/roster"
)

// analyzeStore is the slice of the district repository the analyze stage
// drives. *repo.DistrictRepo satisfies it.
type analyzeStore interface {
	District() *model.District
	Filters(filterType string) ([]model.DistrictFilter, error)
	LineMap(table model.CSVTable) (map[string]*model.DataSyncLine, error)
	ForEachLine(table model.CSVTable, batchSize int, fn func(line *model.DataSyncLine) error) error
	ForEachVanished(since time.Time, batchSize int, fn func(line *model.DataSyncLine) error) error
	GetLine(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error)
	StageLine(line *model.DataSyncLine)
	BumpCounters(added, modified, deleted, rows int) error
	GetStopFlag() (bool, error)
	Committer() *repo.ChunkedCommitter
}

// Analyzer decides which loaded lines are eligible for push this run, walking
// the dependency cascade: orgs by policy, courses by manual flag, classes
// behind their course and school, users behind their org and grade filters.
type Analyzer struct {
	repo      analyzeStore
	logger    *logrus.Entry
	chunkSize int
}

// NewAnalyzer creates an analyzer for one district pass.
func NewAnalyzer(r analyzeStore, chunkSize int, logger *logrus.Entry) *Analyzer {
	return &Analyzer{
		repo:      r,
		logger:    logger.WithField("component", "analyzer"),
		chunkSize: chunkSize,
	}
}

// MarkDeleted sweeps lines that did not appear since the run started. The
// feed has no tombstone for rows that simply vanish, so absence is the
// deletion signal. Every swept line is staged so the audit trail and the
// run's deleted counter see it.
func (a *Analyzer) MarkDeleted(since time.Time) error {
	swept := 0
	err := a.repo.ForEachVanished(since, a.chunkSize, func(line *model.DataSyncLine) error {
		// Stage a copy; the batch slice underneath is reused.
		stale := *line
		if !SweepVanished(&stale, since) {
			return nil
		}
		a.repo.StageLine(&stale)
		if err := a.repo.BumpCounters(0, 0, 1, 0); err != nil {
			return err
		}
		swept++
		return a.repo.Committer().InvokeIfChunk(a.chunkSize)
	})
	if err != nil {
		return NewStageError(model.StageAnalyze, "mark deleted: %w", err)
	}
	if err := a.repo.Committer().InvokeIfAny(); err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}
	if swept > 0 {
		a.logger.Infof("Marked %d vanished lines deleted", swept)
	}
	return nil
}

// Analyze resolves IncludeInSync for every line and promotes eligible ones to
// ReadyToApply.
func (a *Analyzer) Analyze() error {
	district := a.repo.District()

	orgFilter, err := a.filterSet(model.FilterTypeOrg)
	if err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}
	gradeFilter, err := a.filterSet(model.FilterTypeGrade)
	if err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}

	cache, err := BuildLineCache(a.repo,
		model.TableOrgs, model.TableTerms, model.TableCourses, model.TableClasses)
	if err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}

	// Orgs first: everything else cascades off them.
	for _, line := range cache.All(model.TableOrgs) {
		if line.LoadStatus == model.LoadStatusDeleted {
			continue
		}
		a.setInclusion(line, DecideOrgInclusion(line, district.FilterOrgs, orgFilter))
	}

	// Terms carry no policy of their own.
	for _, line := range cache.All(model.TableTerms) {
		if line.LoadStatus == model.LoadStatusDeleted {
			continue
		}
		a.setInclusion(line, true)
	}

	// Courses keep their operator-set flag; the analyzer only promotes the
	// ones already flagged in.
	for _, line := range cache.All(model.TableCourses) {
		if line.LoadStatus == model.LoadStatusDeleted {
			continue
		}
		a.setInclusion(line, line.IncludeInSync)
	}

	for _, line := range cache.All(model.TableClasses) {
		if line.LoadStatus == model.LoadStatusDeleted {
			continue
		}
		a.setInclusion(line, DecideClassInclusion(line, cache))
	}

	if err := a.repo.Committer().InvokeIfAny(); err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}

	// Users are too large to hold in memory; stream and commit in chunks.
	if err := a.analyzeUsers(cache, gradeFilter); err != nil {
		return err
	}

	if err := a.analyzeEnrollments(cache); err != nil {
		return err
	}

	if err := a.repo.Committer().InvokeIfAny(); err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}
	return nil
}

func (a *Analyzer) analyzeUsers(cache *LineCache, gradeFilter map[string]bool) error {
	district := a.repo.District()
	rows := 0
	err := a.repo.ForEachLine(model.TableUsers, a.chunkSize, func(line *model.DataSyncLine) error {
		rows++
		if line.LoadStatus != model.LoadStatusDeleted {
			// Stage a copy; the batch slice underneath is reused.
			u := *line
			a.setInclusion(&u, DecideUserInclusion(&u, cache, district.FilterGrades, gradeFilter))
		}
		if rows%a.chunkSize == 0 {
			if err := a.checkStop(); err != nil {
				return err
			}
			return a.repo.Committer().InvokeIfChunk(a.chunkSize)
		}
		return nil
	})
	if err != nil {
		return NewStageError(model.StageAnalyze, "analyze users: %w", err)
	}
	if err := a.repo.Committer().InvokeIfAny(); err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}
	return nil
}

func (a *Analyzer) analyzeEnrollments(cache *LineCache) error {
	rows := 0
	err := a.repo.ForEachLine(model.TableEnrollments, a.chunkSize, func(line *model.DataSyncLine) error {
		rows++
		if line.LoadStatus != model.LoadStatusDeleted {
			e := *line
			include, err := a.decideEnrollmentInclusion(&e, cache)
			if err != nil {
				return err
			}
			a.setInclusion(&e, include)
		}
		if rows%a.chunkSize == 0 {
			if err := a.checkStop(); err != nil {
				return err
			}
			return a.repo.Committer().InvokeIfChunk(a.chunkSize)
		}
		return nil
	})
	if err != nil {
		return NewStageError(model.StageAnalyze, "analyze enrollments: %w", err)
	}
	if err := a.repo.Committer().InvokeIfAny(); err != nil {
		return NewStageError(model.StageAnalyze, "%w", err)
	}
	return nil
}

// decideEnrollmentInclusion needs the user line, which is not cached; one
// indexed lookup per enrollment row.
func (a *Analyzer) decideEnrollmentInclusion(line *model.DataSyncLine, cache *LineCache) (bool, error) {
	var enr roster.Enrollment
	if err := json.Unmarshal(line.RawData, &enr); err != nil {
		return false, nil
	}
	class := cache.Get(model.TableClasses, enr.ClassSourcedID)
	if class == nil || !class.IncludeInSync {
		return false, nil
	}
	user, err := a.repo.GetLine(model.TableUsers, enr.UserSourcedID)
	if err != nil {
		return false, err
	}
	return user != nil && user.IncludeInSync, nil
}

// setInclusion applies the inclusion decision and promotes eligible lines.
// A line already Applied with no data change is never re-included.
func (a *Analyzer) setInclusion(line *model.DataSyncLine, include bool) {
	changed := line.IncludeInSync != include
	line.IncludeInSync = include
	if IsUnappliedChange(line) &&
		line.SyncStatus != model.SyncStatusReadyToApply &&
		line.SyncStatus != model.SyncStatusReadyToEnroll {
		line.SyncStatus = model.SyncStatusReadyToApply
		changed = true
	}
	if changed {
		a.repo.StageLine(line)
	}
}

func (a *Analyzer) checkStop() error {
	stop, err := a.repo.GetStopFlag()
	if err != nil {
		return err
	}
	if stop {
		return ErrStopRequested
	}
	return nil
}

func (a *Analyzer) filterSet(filterType string) (map[string]bool, error) {
	filters, err := a.repo.Filters(filterType)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(filters))
	for _, f := range filters {
		set[f.FilterValue] = true
	}
	return set, nil
}

// DecideOrgInclusion includes every live org unless org filtering is on, in
// which case only filtered-in orgs pass.
func DecideOrgInclusion(line *model.DataSyncLine, filterOrgs bool, orgFilter map[string]bool) bool {
	if !filterOrgs {
		return true
	}
	return orgFilter[line.SourcedID]
}

// DecideClassInclusion includes a class only when both its course and its
// school org are already included this pass.
func DecideClassInclusion(line *model.DataSyncLine, cache *LineCache) bool {
	var class roster.Class
	if err := json.Unmarshal(line.RawData, &class); err != nil {
		return false
	}
	course := cache.Get(model.TableCourses, class.CourseSourcedID)
	if course == nil || !course.IncludeInSync {
		return false
	}
	school := cache.Get(model.TableOrgs, class.SchoolSourcedID)
	return school != nil && school.IncludeInSync
}

// DecideUserInclusion includes a user when any referenced org is included
// and, when grade filters are configured, at least one of the user's grades
// matches an active filter.
func DecideUserInclusion(line *model.DataSyncLine, cache *LineCache, filterGrades bool, gradeFilter map[string]bool) bool {
	var user roster.User
	if err := json.Unmarshal(line.RawData, &user); err != nil {
		return false
	}

	orgIncluded := false
	for _, org := range splitList(user.OrgSourcedIDs) {
		if o := cache.Get(model.TableOrgs, org); o != nil && o.IncludeInSync {
			orgIncluded = true
			break
		}
	}
	if !orgIncluded {
		return false
	}

	if filterGrades && len(gradeFilter) > 0 {
		return GradeMatch(user.Grades, gradeFilter)
	}
	return true
}

// GradeMatch reports whether any of the comma-separated grades appears in
// the active filter set.
func GradeMatch(grades string, active map[string]bool) bool {
	for _, g := range splitList(grades) {
		if active[g] {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
