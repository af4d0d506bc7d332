package roster

import "strings"

// Record is one typed row from a roster CSV file.
type Record interface {
	Key() string
	Deleted() bool
}

// Base carries the columns shared by every OneRoster CSV entity.
type Base struct {
	SourcedID        string `json:"sourcedId"`
	Status           string `json:"status,omitempty"`
	DateLastModified string `json:"dateLastModified,omitempty"`
}

// Key returns the source system immutable key.
func (b Base) Key() string {
	return b.SourcedID
}

// Deleted reports whether the source marked this record deleted.
func (b Base) Deleted() bool {
	return strings.EqualFold(b.Status, "deleted")
}

// Org is a row from orgs.csv.
type Org struct {
	Base
	Name            string `json:"name"`
	Type            string `json:"type"`
	Identifier      string `json:"identifier,omitempty"`
	ParentSourcedID string `json:"parentSourcedId,omitempty"`
}

// AcademicSession is a row from academicSessions.csv (a term, semester or
// school year).
type AcademicSession struct {
	Base
	Title           string `json:"title"`
	Type            string `json:"type"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	ParentSourcedID string `json:"parentSourcedId,omitempty"`
	SchoolYear      string `json:"schoolYear,omitempty"`
}

// Course is a row from courses.csv.
type Course struct {
	Base
	SchoolYearSourcedID string `json:"schoolYearSourcedId,omitempty"`
	Title               string `json:"title"`
	CourseCode          string `json:"courseCode,omitempty"`
	Grades              string `json:"grades,omitempty"`
	OrgSourcedID        string `json:"orgSourcedId"`
	Subjects            string `json:"subjects,omitempty"`
}

// Class is a row from classes.csv.
type Class struct {
	Base
	Title           string `json:"title"`
	Grades          string `json:"grades,omitempty"`
	CourseSourcedID string `json:"courseSourcedId"`
	ClassCode       string `json:"classCode,omitempty"`
	ClassType       string `json:"classType,omitempty"`
	Location        string `json:"location,omitempty"`
	SchoolSourcedID string `json:"schoolSourcedId"`
	TermSourcedIDs  string `json:"termSourcedIds,omitempty"`
	Subjects        string `json:"subjects,omitempty"`
	Periods         string `json:"periods,omitempty"`
}

// User is a row from users.csv.
type User struct {
	Base
	EnabledUser   string `json:"enabledUser"`
	OrgSourcedIDs string `json:"orgSourcedIds"`
	Role          string `json:"role"`
	Username      string `json:"username"`
	UserIDs       string `json:"userIds,omitempty"`
	GivenName     string `json:"givenName"`
	FamilyName    string `json:"familyName"`
	MiddleName    string `json:"middleName,omitempty"`
	Identifier    string `json:"identifier,omitempty"`
	Email         string `json:"email,omitempty"`
	SMS           string `json:"sms,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Grades        string `json:"grades,omitempty"`
	Password      string `json:"password,omitempty"`
}

// Enabled reports whether the user account is active. An absent value counts
// as enabled.
func (u User) Enabled() bool {
	return !strings.EqualFold(strings.TrimSpace(u.EnabledUser), "false")
}

// Enrollment is a row from enrollments.csv.
type Enrollment struct {
	Base
	ClassSourcedID  string `json:"classSourcedId"`
	SchoolSourcedID string `json:"schoolSourcedId"`
	UserSourcedID   string `json:"userSourcedId"`
	Role            string `json:"role"`
	Primary         string `json:"primary,omitempty"`
	BeginDate       string `json:"beginDate,omitempty"`
	EndDate         string `json:"endDate,omitempty"`
}
