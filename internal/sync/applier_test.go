package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"rostersync/internal/lmsclient"
	"rostersync/internal/model"
)

func discardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// fakeApplyStore keeps lines in memory and records every persisted outcome.
type fakeApplyStore struct {
	mu       sync.Mutex
	district *model.District
	history  *model.DataSyncHistory
	lines    map[int]*model.DataSyncLine
	details  []model.DataSyncHistoryDetail
}

func newFakeApplyStore(lines ...*model.DataSyncLine) *fakeApplyStore {
	s := &fakeApplyStore{
		district: &model.District{
			BaseModel:      model.BaseModel{ID: 7},
			Name:           "Unified District",
			TargetBaseURL:  "https://lms.example.com",
			OrgEndpoint:    "/api/district/org",
			UserEndpoint:   "/api/district/user",
			EnrollEndpoint: "/api/district/enrollment",
			APIKey:         "k-123",
		},
		history: &model.DataSyncHistory{BaseModel: model.BaseModel{ID: 42}, DistrictID: 7},
		lines:   map[int]*model.DataSyncLine{},
	}
	for _, l := range lines {
		s.lines[l.ID] = l
	}
	return s
}

func (s *fakeApplyStore) District() *model.District { return s.district }

func (s *fakeApplyStore) CurrentHistory() (*model.DataSyncHistory, error) { return s.history, nil }

func (s *fakeApplyStore) GetStopFlag() (bool, error) { return false, nil }

func (s *fakeApplyStore) eligible(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int) []*model.DataSyncLine {
	excluded := map[int]struct{}{}
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	var out []*model.DataSyncLine
	for _, l := range s.lines {
		if l.Table != table || !l.IncludeInSync || l.LoadStatus == model.LoadStatusDeleted {
			continue
		}
		if _, ok := excluded[l.ID]; ok {
			continue
		}
		for _, st := range statuses {
			if l.SyncStatus == st {
				out = append(out, l)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeApplyStore) CountApplyRemaining(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.eligible(table, statuses, excludeIDs))), nil
}

func (s *fakeApplyStore) SelectApplyBatch(table model.CSVTable, statuses []model.SyncStatus, excludeIDs []int, limit int) ([]model.DataSyncLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var batch []model.DataSyncLine
	for _, l := range s.eligible(table, statuses, excludeIDs) {
		if len(batch) == limit {
			break
		}
		batch = append(batch, *l)
	}
	return batch, nil
}

func (s *fakeApplyStore) GetLine(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if l.Table == table && l.SourcedID == sourcedID {
			found := *l
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeApplyStore) SaveApplied(line *model.DataSyncLine, detail *model.DataSyncHistoryDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line.Touch()
	saved := *line
	s.lines[line.ID] = &saved
	s.details = append(s.details, *detail)
	return nil
}

func (s *fakeApplyStore) line(id int) model.DataSyncLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.lines[id]
}

// scriptedAPI records requests and answers with whatever respond returns.
type scriptedAPI struct {
	mu      sync.Mutex
	calls   []lmsclient.ApplyRequest
	respond func(req *lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error)
}

func (a *scriptedAPI) Apply(_ context.Context, _, _ string, req *lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error) {
	a.mu.Lock()
	a.calls = append(a.calls, *req)
	a.mu.Unlock()
	return a.respond(req)
}

func readyLine(id int, table model.CSVTable, sourcedID, raw string) *model.DataSyncLine {
	return &model.DataSyncLine{
		BaseModel:     model.BaseModel{ID: id},
		DistrictID:    7,
		Table:         table,
		SourcedID:     sourcedID,
		RawData:       []byte(raw),
		LoadStatus:    model.LoadStatusAdded,
		SyncStatus:    model.SyncStatusReadyToApply,
		IncludeInSync: true,
	}
}

func TestApplyLinesStallAborts(t *testing.T) {
	store := newFakeApplyStore(
		readyLine(1, model.TableOrgs, "org-1", `{"sourcedId":"org-1","name":"North High"}`),
		readyLine(2, model.TableOrgs, "org-2", `{"sourcedId":"org-2","name":"South High"}`),
	)
	api := &scriptedAPI{respond: func(*lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error) {
		return &lmsclient.ApplyResponse{Success: false, ErrorCode: "rejected", ErrorMessage: "no"}, nil
	}}
	applier := NewApplier(store, api, 10, 1, nil, discardLogger())

	err := applier.ApplyLines(context.Background(), model.TableOrgs)
	if err == nil {
		t.Fatal("expected two consecutive zero-progress batches to abort the stage")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != model.StageApply {
		t.Fatalf("expected apply stage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "stalled") {
		t.Errorf("error should report the stall: %v", err)
	}
	for _, id := range []int{1, 2} {
		if got := store.line(id).SyncStatus; got != model.SyncStatusApplyFailed {
			t.Errorf("line %d sync status = %s, want %s", id, got, model.SyncStatusApplyFailed)
		}
	}
}

func TestApplyLineResponses(t *testing.T) {
	t.Run("success adopts target id and overwrites stale error fields", func(t *testing.T) {
		line := readyLine(1, model.TableOrgs, "org-1", `{"sourcedId":"org-1","name":"North High"}`)
		line.SyncStatus = model.SyncStatusApplyFailed
		line.Error = "temporarily unavailable"
		line.ErrorCode = "transport_error"
		store := newFakeApplyStore(line)
		api := &scriptedAPI{respond: func(*lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error) {
			return &lmsclient.ApplyResponse{Success: true, TargetID: "T1"}, nil
		}}
		applier := NewApplier(store, api, 10, 1, nil, discardLogger())

		if err := applier.ApplyLines(context.Background(), model.TableOrgs); err != nil {
			t.Fatalf("ApplyLines() error: %v", err)
		}
		got := store.line(1)
		if got.SyncStatus != model.SyncStatusApplied {
			t.Errorf("sync status = %s, want %s", got.SyncStatus, model.SyncStatusApplied)
		}
		if got.TargetID == nil || *got.TargetID != "T1" {
			t.Errorf("target id not adopted: %v", got.TargetID)
		}
		if got.Error != "" || got.ErrorCode != "" {
			t.Errorf("stale error fields survived: %q / %q", got.Error, got.ErrorCode)
		}
		if len(store.details) != 1 || store.details[0].HistoryID != 42 {
			t.Errorf("expected one audit detail on history 42, got %+v", store.details)
		}
	})

	t.Run("rejection records code and message", func(t *testing.T) {
		line := readyLine(1, model.TableOrgs, "org-1", `{"sourcedId":"org-1","name":"North High"}`)
		store := newFakeApplyStore(line)
		api := &scriptedAPI{respond: func(*lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error) {
			return &lmsclient.ApplyResponse{Success: false, ErrorCode: "duplicate_key", ErrorMessage: "already exists"}, nil
		}}
		applier := NewApplier(store, api, 10, 1, nil, discardLogger())

		work := store.line(1)
		err := applier.applyLine(context.Background(), model.TableOrgs,
			"https://lms.example.com/api/district/org", applier.builders[model.TableOrgs], &work)
		if err != nil {
			t.Fatalf("applyLine() error: %v", err)
		}
		got := store.line(1)
		if got.SyncStatus != model.SyncStatusApplyFailed {
			t.Errorf("sync status = %s, want %s", got.SyncStatus, model.SyncStatusApplyFailed)
		}
		if got.ErrorCode != "duplicate_key" || got.Error != "already exists" {
			t.Errorf("error fields = %q / %q", got.ErrorCode, got.Error)
		}
	})

	t.Run("transport failure marks the line, not the stage", func(t *testing.T) {
		line := readyLine(1, model.TableOrgs, "org-1", `{"sourcedId":"org-1","name":"North High"}`)
		store := newFakeApplyStore(line)
		api := &scriptedAPI{respond: func(*lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error) {
			return nil, fmt.Errorf("connection refused")
		}}
		applier := NewApplier(store, api, 10, 1, nil, discardLogger())

		work := store.line(1)
		err := applier.applyLine(context.Background(), model.TableOrgs,
			"https://lms.example.com/api/district/org", applier.builders[model.TableOrgs], &work)
		if err != nil {
			t.Fatalf("applyLine() error: %v", err)
		}
		got := store.line(1)
		if got.SyncStatus != model.SyncStatusApplyFailed || got.ErrorCode != "transport_error" {
			t.Errorf("line = %s / %q, want %s / transport_error", got.SyncStatus, got.ErrorCode, model.SyncStatusApplyFailed)
		}
		if got.Error != "connection refused" {
			t.Errorf("Error = %q, want the transport message", got.Error)
		}
	})
}

func TestApplyUserEnrollsAfterPush(t *testing.T) {
	user := readyLine(1, model.TableUsers, "user-1",
		`{"sourcedId":"user-1","enabledUser":"true","orgSourcedIds":"org-1","role":"student",`+
			`"username":"jdoe","givenName":"Jane","familyName":"Doe"}`)
	org := appliedLine(model.TableOrgs, "org-1", "O-1")
	org.ID = 2
	org.RawData = []byte(`{"sourcedId":"org-1","name":"North High","type":"school","identifier":"123456789012"}`)
	store := newFakeApplyStore(user, org)

	api := &scriptedAPI{respond: func(req *lmsclient.ApplyRequest) (*lmsclient.ApplyResponse, error) {
		if req.Table == string(model.TableUsers) {
			return &lmsclient.ApplyResponse{Success: true, TargetID: "U-77"}, nil
		}
		return &lmsclient.ApplyResponse{Success: true}, nil
	}}
	applier := NewApplier(store, api, 10, 1, nil, discardLogger())

	if err := applier.ApplyLines(context.Background(), model.TableUsers); err != nil {
		t.Fatalf("ApplyLines() error: %v", err)
	}

	if len(api.calls) != 2 {
		t.Fatalf("expected user push plus enrollment, got %d calls", len(api.calls))
	}
	if api.calls[1].Table != "schoolEnrollment" {
		t.Errorf("second call table = %q, want schoolEnrollment", api.calls[1].Table)
	}
	got := store.line(1)
	if got.SyncStatus != model.SyncStatusApplied {
		t.Errorf("sync status = %s, want %s", got.SyncStatus, model.SyncStatusApplied)
	}
	if got.TargetID == nil || *got.TargetID != "U-77" {
		t.Errorf("user target id = %v, want U-77", got.TargetID)
	}
}
