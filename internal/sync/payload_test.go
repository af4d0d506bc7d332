package sync

import (
	"encoding/json"
	"errors"
	"testing"

	"rostersync/internal/model"
	"rostersync/internal/roster"
)

func mapLookup(lines map[string]*model.DataSyncLine) lineLookup {
	return func(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error) {
		return lines[string(table)+"/"+sourcedID], nil
	}
}

func appliedLine(table model.CSVTable, sourcedID, targetID string) *model.DataSyncLine {
	return &model.DataSyncLine{
		Table:         table,
		SourcedID:     sourcedID,
		TargetID:      &targetID,
		IncludeInSync: true,
		SyncStatus:    model.SyncStatusApplied,
	}
}

func TestClassPayload(t *testing.T) {
	classLine := &model.DataSyncLine{
		Table:     model.TableClasses,
		SourcedID: "class-1",
		RawData: []byte(`{"sourcedId":"class-1","title":"Algebra","courseSourcedId":"course-1",` +
			`"schoolSourcedId":"org-1","termSourcedIds":"term-1"}`),
	}

	t.Run("resolves course school and term targets", func(t *testing.T) {
		lookup := mapLookup(map[string]*model.DataSyncLine{
			"courses/course-1":        appliedLine(model.TableCourses, "course-1", "c-77"),
			"orgs/org-1":              appliedLine(model.TableOrgs, "org-1", "o-12"),
			"academicSessions/term-1": appliedLine(model.TableTerms, "term-1", "t-5"),
		})
		payload, err := classPayload(classLine, lookup)
		if err != nil {
			t.Fatalf("classPayload() error: %v", err)
		}
		var got map[string]interface{}
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("invalid payload JSON: %v", err)
		}
		if got["courseTargetId"] != "c-77" || got["schoolTargetId"] != "o-12" || got["termTargetId"] != "t-5" {
			t.Errorf("unexpected targets in payload: %v", got)
		}
	})

	t.Run("missing term falls back to default", func(t *testing.T) {
		lookup := mapLookup(map[string]*model.DataSyncLine{
			"courses/course-1": appliedLine(model.TableCourses, "course-1", "c-77"),
			"orgs/org-1":       appliedLine(model.TableOrgs, "org-1", "o-12"),
		})
		payload, err := classPayload(classLine, lookup)
		if err != nil {
			t.Fatalf("classPayload() error: %v", err)
		}
		var got map[string]interface{}
		_ = json.Unmarshal(payload, &got)
		if got["termTargetId"] != defaultTermTargetID {
			t.Errorf("termTargetId = %v, want %q", got["termTargetId"], defaultTermTargetID)
		}
	})

	t.Run("unapplied course skips the class", func(t *testing.T) {
		lookup := mapLookup(map[string]*model.DataSyncLine{
			"orgs/org-1": appliedLine(model.TableOrgs, "org-1", "o-12"),
		})
		_, err := classPayload(classLine, lookup)
		if !errors.Is(err, errSkipDependency) {
			t.Errorf("expected errSkipDependency, got %v", err)
		}
	})
}

func TestUserPayloadBuilder(t *testing.T) {
	district := &model.District{
		UsernameSource:  model.UsernameSourceEmail,
		EmailDomain:     "example.edu",
		InitialPassword: "changeme1",
	}
	lookup := mapLookup(map[string]*model.DataSyncLine{
		"orgs/org-1": appliedLine(model.TableOrgs, "org-1", "o-12"),
	})

	t.Run("applies field mapping rules", func(t *testing.T) {
		line := &model.DataSyncLine{
			Table:     model.TableUsers,
			SourcedID: "user-1",
			RawData: []byte(`{"sourcedId":"user-1","enabledUser":"true","orgSourcedIds":"org-1",` +
				`"role":"student","username":"jdoe","givenName":"Jane","familyName":"Doe",` +
				`"email":"jane@example.edu"}`),
		}
		payload, err := userPayloadBuilder(district)(line, lookup)
		if err != nil {
			t.Fatalf("builder error: %v", err)
		}
		var got roster.User
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("invalid payload JSON: %v", err)
		}
		if got.Username != "jane@example.edu" {
			t.Errorf("Username = %q, want email as username", got.Username)
		}
		if got.Password != "changeme1" {
			t.Errorf("Password = %q, want district initial password", got.Password)
		}
	})

	t.Run("email derived from username and domain", func(t *testing.T) {
		d := &model.District{UsernameSource: model.UsernameSourceUsername, EmailDomain: "example.edu"}
		line := &model.DataSyncLine{
			Table:     model.TableUsers,
			SourcedID: "user-1",
			RawData: []byte(`{"sourcedId":"user-1","enabledUser":"true","orgSourcedIds":"org-1",` +
				`"role":"student","username":"jdoe","givenName":"Jane","familyName":"Doe"}`),
		}
		payload, err := userPayloadBuilder(d)(line, lookup)
		if err != nil {
			t.Fatalf("builder error: %v", err)
		}
		var got roster.User
		_ = json.Unmarshal(payload, &got)
		if got.Email != "jdoe@example.edu" {
			t.Errorf("Email = %q, want derived address", got.Email)
		}
	})

	t.Run("user without applied org is skipped", func(t *testing.T) {
		line := &model.DataSyncLine{
			Table:     model.TableUsers,
			SourcedID: "user-1",
			RawData: []byte(`{"sourcedId":"user-1","enabledUser":"true","orgSourcedIds":"org-9",` +
				`"role":"student","username":"jdoe","givenName":"Jane","familyName":"Doe"}`),
		}
		_, err := userPayloadBuilder(district)(line, lookup)
		if !errors.Is(err, errSkipDependency) {
			t.Errorf("expected errSkipDependency, got %v", err)
		}
	})
}

func TestEnrollmentPayload(t *testing.T) {
	enrLine := &model.DataSyncLine{
		Table:     model.TableEnrollments,
		SourcedID: "enr-1",
		RawData: []byte(`{"sourcedId":"enr-1","classSourcedId":"class-1","schoolSourcedId":"org-1",` +
			`"userSourcedId":"user-1","role":"student"}`),
	}

	t.Run("resolves class and user targets", func(t *testing.T) {
		lookup := mapLookup(map[string]*model.DataSyncLine{
			"classes/class-1": appliedLine(model.TableClasses, "class-1", "cl-3"),
			"users/user-1":    appliedLine(model.TableUsers, "user-1", "u-9"),
		})
		payload, err := enrollmentPayload(enrLine, lookup)
		if err != nil {
			t.Fatalf("enrollmentPayload() error: %v", err)
		}
		var got map[string]interface{}
		_ = json.Unmarshal(payload, &got)
		if got["classTargetId"] != "cl-3" || got["userTargetId"] != "u-9" {
			t.Errorf("unexpected targets: %v", got)
		}
	})

	t.Run("unapplied user skips the enrollment", func(t *testing.T) {
		lookup := mapLookup(map[string]*model.DataSyncLine{
			"classes/class-1": appliedLine(model.TableClasses, "class-1", "cl-3"),
		})
		_, err := enrollmentPayload(enrLine, lookup)
		if !errors.Is(err, errSkipDependency) {
			t.Errorf("expected errSkipDependency, got %v", err)
		}
	})
}

func TestTargetOf(t *testing.T) {
	t.Run("excluded line does not serve as dependency", func(t *testing.T) {
		excluded := appliedLine(model.TableOrgs, "org-1", "o-12")
		excluded.IncludeInSync = false
		lookup := mapLookup(map[string]*model.DataSyncLine{"orgs/org-1": excluded})
		if _, err := targetOf(lookup, model.TableOrgs, "org-1"); !errors.Is(err, errSkipDependency) {
			t.Errorf("expected errSkipDependency, got %v", err)
		}
	})

	t.Run("empty sourcedId skips", func(t *testing.T) {
		if _, err := targetOf(mapLookup(nil), model.TableOrgs, ""); !errors.Is(err, errSkipDependency) {
			t.Errorf("expected errSkipDependency, got %v", err)
		}
	})
}
