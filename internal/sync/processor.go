package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rostersync/internal/cache"
	"rostersync/internal/model"
	"rostersync/internal/repo"
)

// sampleRowLimit caps each file during a sample load so an operator can sanity
// check a new feed without ingesting it fully.
const sampleRowLimit = 100

// lockTTL bounds a crashed pass; the advisory lock expires on its own.
const lockTTL = 2 * time.Hour

// Publisher pushes district state changes to connected dashboard clients.
type Publisher interface {
	PublishDistrict(district *model.District)
}

// Options carries the tuning knobs a Processor passes down to its stages.
type Options struct {
	CSVRoot            string
	CommitChunkSize    int
	ApplyBatchSize     int
	ParallelMultiplier int
}

// Processor runs one district through the requested stages. Consumers call
// Process once per dequeued work item; districts never share a Processor pass.
type Processor struct {
	db        *gorm.DB
	api       API
	opts      Options
	publisher Publisher
	logger    *logrus.Entry
}

// NewProcessor creates a processor. publisher may be nil when no dashboard is
// attached.
func NewProcessor(db *gorm.DB, api API, opts Options, publisher Publisher, logger *logrus.Entry) *Processor {
	return &Processor{
		db:        db,
		api:       api,
		opts:      opts,
		publisher: publisher,
		logger:    logger.WithField("component", "processor"),
	}
}

// Process executes one action for one district. The advisory lock guards
// against a second process picking up the same district; losing the race is
// not an error.
func (p *Processor) Process(ctx context.Context, districtID int, action model.ProcessingAction) error {
	ok, err := cache.AcquireDistrictLock(ctx, districtID, lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire district lock: %w", err)
	}
	if !ok {
		p.logger.Warnf("District %d is already being processed elsewhere, skipping %s", districtID, action)
		return nil
	}
	defer func() {
		if err := cache.ReleaseDistrictLock(context.Background(), districtID); err != nil {
			p.logger.Errorf("Failed to release lock for district %d: %v", districtID, err)
		}
	}()

	var district model.District
	if err := p.db.First(&district, districtID).Error; err != nil {
		return fmt.Errorf("failed to load district %d: %w", districtID, err)
	}

	// Every pass gets its own id so interleaved district logs stay traceable.
	passLogger := p.logger.WithField("pass", uuid.NewString())
	r := repo.NewDistrictRepo(p.db, &district, passLogger)
	passLogger.Infof("Processing district %d (%s): %s", district.ID, district.Name, action)

	switch action {
	case model.ProcessingActionLoad:
		err = p.runLoad(ctx, r, 0)
	case model.ProcessingActionLoadSample:
		err = p.runLoad(ctx, r, sampleRowLimit)
	case model.ProcessingActionAnalyze:
		err = p.runAnalyze(ctx, r, time.Time{})
	case model.ProcessingActionApply:
		err = p.runApply(ctx, r)
	case model.ProcessingActionFullProcess:
		err = p.runFull(ctx, r)
	case model.ProcessingActionNone:
		return nil
	default:
		return fmt.Errorf("unknown processing action %q", action)
	}

	if errors.Is(err, ErrStopRequested) {
		p.logger.Infof("District %d: %s stopped on request", district.ID, action)
		err = nil
	}
	p.finishAction(r)
	return err
}

// runStage wraps one stage with history bookkeeping: start stamp, error
// capture, buffered-write handling and the completion stamp.
func (p *Processor) runStage(r *repo.DistrictRepo, stage model.ProcessingStage, body func() error) error {
	if err := r.RecordProcessingStart(stage); err != nil {
		return err
	}
	p.publish(r.District())

	err := body()
	switch {
	case err == nil:
		if flushErr := r.Committer().InvokeIfAny(); flushErr != nil {
			err = NewStageError(stage, "%w", flushErr)
		}
	case errors.Is(err, ErrStopRequested):
		// A stop keeps everything committed so far and drops the rest.
		r.Reset()
	default:
		r.Reset()
		if recErr := r.RecordProcessingError(err.Error(), stageOf(err, stage)); recErr != nil {
			p.logger.Errorf("Failed to record stage error: %v", recErr)
		}
	}

	if stopErr := r.RecordProcessingStop(stage); stopErr != nil && err == nil {
		err = stopErr
	}
	p.publish(r.District())
	return err
}

func (p *Processor) runLoad(ctx context.Context, r *repo.DistrictRepo, maxRows int) error {
	return p.runStage(r, model.StageLoad, func() error {
		loader := NewLoader(r, p.opts.CommitChunkSize, maxRows, p.logger)
		return loader.LoadAll(p.csvFolder(r.District()))
	})
}

// runAnalyze resolves inclusion. The deleted sweep only runs when the caller
// supplies the start of a fresh load; a standalone analyze has no feed pass to
// compare last-seen stamps against.
func (p *Processor) runAnalyze(ctx context.Context, r *repo.DistrictRepo, runStart time.Time) error {
	return p.runStage(r, model.StageAnalyze, func() error {
		analyzer := NewAnalyzer(r, p.opts.CommitChunkSize, p.logger)
		if !runStart.IsZero() {
			if err := analyzer.MarkDeleted(runStart); err != nil {
				return err
			}
		}
		return analyzer.Analyze()
	})
}

func (p *Processor) runApply(ctx context.Context, r *repo.DistrictRepo) error {
	return p.runStage(r, model.StageApply, func() error {
		fallback, err := p.ncesFallback(r)
		if err != nil {
			return err
		}
		applier := NewApplier(r, p.api, p.opts.ApplyBatchSize, p.opts.ParallelMultiplier, fallback, p.logger)
		return applier.ApplyAll(ctx)
	})
}

// runFull chains load, analyze and apply. Each stage only runs when the
// previous one finished clean; runStart is taken before the load so the
// deleted sweep catches everything the fresh feed no longer mentions.
func (p *Processor) runFull(ctx context.Context, r *repo.DistrictRepo) error {
	runStart := time.Now().UTC()

	if err := p.runLoad(ctx, r, 0); err != nil {
		return err
	}
	if err := p.stageClean(r, model.StageLoad); err != nil {
		return err
	}

	if err := p.runAnalyze(ctx, r, runStart); err != nil {
		return err
	}
	if err := p.stageClean(r, model.StageAnalyze); err != nil {
		return err
	}

	return p.runApply(ctx, r)
}

// stageClean re-reads the current history and fails when the given stage
// recorded an error, so a full process never builds on a broken stage.
func (p *Processor) stageClean(r *repo.DistrictRepo, stage model.ProcessingStage) error {
	h, err := r.CurrentHistory()
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("no history recorded for %s stage", stage)
	}
	if msg := h.StageError(stage); msg != "" {
		return fmt.Errorf("%s stage failed, not continuing: %s", stage, msg)
	}
	return nil
}

// finishAction clears the stop flag so the next action starts clean.
func (p *Processor) finishAction(r *repo.DistrictRepo) {
	district := r.District()
	district.StopCurrentAction = false
	district.Touch()
	if err := p.db.Save(district).Error; err != nil {
		p.logger.Errorf("Failed to clear district %d action state: %v", district.ID, err)
	}
	p.publish(district)
}

func (p *Processor) publish(district *model.District) {
	if p.publisher != nil {
		p.publisher.PublishDistrict(district)
	}
}

func (p *Processor) csvFolder(district *model.District) string {
	if district.CSVFolder == "" {
		return p.opts.CSVRoot
	}
	return district.CSVFolder
}

// ncesFallback loads the operator-maintained school-name to NCES-id mapping
// kept as district filters.
func (p *Processor) ncesFallback(r *repo.DistrictRepo) (map[string]string, error) {
	filters, err := r.Filters(model.FilterTypeNCESSchool)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(filters))
	for _, f := range filters {
		if f.FilterKey != "" {
			m[normalizeSchoolName(f.FilterKey)] = f.FilterValue
		}
	}
	return m, nil
}

// stageOf prefers the stage an error was tagged with over the caller's
// fallback.
func stageOf(err error, fallback model.ProcessingStage) model.ProcessingStage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return fallback
}
