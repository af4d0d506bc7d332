package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"rostersync/internal/model"
)

// FileName returns the conventional CSV file name for an entity table.
func FileName(table model.CSVTable) string {
	return string(table) + ".csv"
}

type row struct {
	header map[string]int
	fields []string
}

func (r row) get(name string) string {
	idx, ok := r.header[name]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return r.fields[idx]
}

// decode maps one CSV row onto the typed record for the table.
func decode(table model.CSVTable, r row) (Record, error) {
	switch table {
	case model.TableOrgs:
		return &Org{
			Base:            baseOf(r),
			Name:            r.get("name"),
			Type:            r.get("type"),
			Identifier:      r.get("identifier"),
			ParentSourcedID: r.get("parentSourcedId"),
		}, nil
	case model.TableTerms:
		return &AcademicSession{
			Base:            baseOf(r),
			Title:           r.get("title"),
			Type:            r.get("type"),
			StartDate:       r.get("startDate"),
			EndDate:         r.get("endDate"),
			ParentSourcedID: r.get("parentSourcedId"),
			SchoolYear:      r.get("schoolYear"),
		}, nil
	case model.TableCourses:
		return &Course{
			Base:                baseOf(r),
			SchoolYearSourcedID: r.get("schoolYearSourcedId"),
			Title:               r.get("title"),
			CourseCode:          r.get("courseCode"),
			Grades:              r.get("grades"),
			OrgSourcedID:        r.get("orgSourcedId"),
			Subjects:            r.get("subjects"),
		}, nil
	case model.TableClasses:
		return &Class{
			Base:            baseOf(r),
			Title:           r.get("title"),
			Grades:          r.get("grades"),
			CourseSourcedID: r.get("courseSourcedId"),
			ClassCode:       r.get("classCode"),
			ClassType:       r.get("classType"),
			Location:        r.get("location"),
			SchoolSourcedID: r.get("schoolSourcedId"),
			TermSourcedIDs:  r.get("termSourcedIds"),
			Subjects:        r.get("subjects"),
			Periods:         r.get("periods"),
		}, nil
	case model.TableUsers:
		return &User{
			Base:          baseOf(r),
			EnabledUser:   r.get("enabledUser"),
			OrgSourcedIDs: r.get("orgSourcedIds"),
			Role:          r.get("role"),
			Username:      r.get("username"),
			UserIDs:       r.get("userIds"),
			GivenName:     r.get("givenName"),
			FamilyName:    r.get("familyName"),
			MiddleName:    r.get("middleName"),
			Identifier:    r.get("identifier"),
			Email:         r.get("email"),
			SMS:           r.get("sms"),
			Phone:         r.get("phone"),
			Grades:        r.get("grades"),
			Password:      r.get("password"),
		}, nil
	case model.TableEnrollments:
		return &Enrollment{
			Base:            baseOf(r),
			ClassSourcedID:  r.get("classSourcedId"),
			SchoolSourcedID: r.get("schoolSourcedId"),
			UserSourcedID:   r.get("userSourcedId"),
			Role:            r.get("role"),
			Primary:         r.get("primary"),
			BeginDate:       r.get("beginDate"),
			EndDate:         r.get("endDate"),
		}, nil
	}
	return nil, fmt.Errorf("unknown csv table: %s", table)
}

func baseOf(r row) Base {
	return Base{
		SourcedID:        r.get("sourcedId"),
		Status:           r.get("status"),
		DateLastModified: r.get("dateLastModified"),
	}
}

// Stream reads one CSV file row by row and invokes fn for each typed record.
// A missing file is returned as-is so the caller can treat it as fatal; an
// error from fn aborts the stream.
func Stream(path string, table model.CSVTable, fn func(rec Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	// Rows with trailing empty columns are common in exported feeds.
	reader.FieldsPerRecord = -1

	headerFields, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header := make(map[string]int, len(headerFields))
	for i, name := range headerFields {
		header[name] = i
	}
	if _, ok := header["sourcedId"]; !ok {
		return fmt.Errorf("file %s has no sourcedId column", path)
	}

	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("malformed row at %s line %d: %w", path, line, err)
		}

		rec, err := decode(table, row{header: header, fields: fields})
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
