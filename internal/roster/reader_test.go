package roster

import (
	"os"
	"path/filepath"
	"testing"

	"rostersync/internal/model"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestStreamOrgs(t *testing.T) {
	path := writeCSV(t, "orgs.csv",
		"sourcedId,status,dateLastModified,name,type,identifier,parentSourcedId\n"+
			"org-1,active,2024-01-01,North High,school,063405,district-1\n"+
			"org-2,tobedeleted,2024-01-02,Closed Middle,school,,district-1\n")

	var got []*Org
	err := Stream(path, model.TableOrgs, func(rec Record) error {
		got = append(got, rec.(*Org))
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].SourcedID != "org-1" || got[0].Name != "North High" || got[0].Identifier != "063405" {
		t.Errorf("unexpected first org: %+v", got[0])
	}
	if got[0].Deleted() {
		t.Error("active org reported deleted")
	}
}

func TestStreamDeletedStatus(t *testing.T) {
	path := writeCSV(t, "users.csv",
		"sourcedId,status,enabledUser,orgSourcedIds,role,username,givenName,familyName\n"+
			"u-1,deleted,true,org-1,student,jdoe,Jane,Doe\n")

	err := Stream(path, model.TableUsers, func(rec Record) error {
		if !rec.Deleted() {
			t.Error("expected deleted status to be recognized")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
}

func TestStreamTrailingColumnsTolerated(t *testing.T) {
	// Exported feeds routinely drop trailing empty columns.
	path := writeCSV(t, "classes.csv",
		"sourcedId,status,title,courseSourcedId,schoolSourcedId,termSourcedIds,periods\n"+
			"c-1,active,Algebra,course-1,org-1\n")

	var got *Class
	err := Stream(path, model.TableClasses, func(rec Record) error {
		got = rec.(*Class)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if got.CourseSourcedID != "course-1" || got.TermSourcedIDs != "" {
		t.Errorf("unexpected class: %+v", got)
	}
}

func TestStreamMissingFile(t *testing.T) {
	err := Stream(filepath.Join(t.TempDir(), "orgs.csv"), model.TableOrgs, func(Record) error {
		t.Fatal("callback must not run for a missing file")
		return nil
	})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStreamMissingSourcedIDColumn(t *testing.T) {
	path := writeCSV(t, "orgs.csv", "id,name\n1,North High\n")
	err := Stream(path, model.TableOrgs, func(Record) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing sourcedId column")
	}
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	path := writeCSV(t, "orgs.csv",
		"sourcedId,name\norg-1,A\norg-2,B\n")

	calls := 0
	err := Stream(path, model.TableOrgs, func(Record) error {
		calls++
		return os.ErrClosed
	})
	if err == nil {
		t.Fatal("expected callback error to propagate")
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(model.TableTerms); got != "academicSessions.csv" {
		t.Errorf("FileName() = %q", got)
	}
}
