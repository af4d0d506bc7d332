package sync

import (
	"encoding/json"
	"errors"
	"fmt"

	"rostersync/internal/model"
	"rostersync/internal/roster"
)

// errSkipDependency marks a line whose parent has not been applied yet. The
// line is silently skipped this pass and retried once the dependency
// resolves; it is not a failure.
var errSkipDependency = errors.New("dependency not yet applied")

// lineLookup resolves a sibling line during payload construction.
type lineLookup func(table model.CSVTable, sourcedID string) (*model.DataSyncLine, error)

// payloadBuilder produces the entity payload for one line, resolving
// cross-entity target ids where the LMS needs them.
type payloadBuilder func(line *model.DataSyncLine, lookup lineLookup) (json.RawMessage, error)

// defaultTermTargetID is used when a class names no term or the term has no
// target yet; the LMS files the class under its default session.
const defaultTermTargetID = "default"

// payloadBuilders is the closed set of per-entity builders, dispatched once
// per batch rather than per record.
func payloadBuilders(district *model.District) map[model.CSVTable]payloadBuilder {
	return map[model.CSVTable]payloadBuilder{
		model.TableOrgs:        rawPayload,
		model.TableTerms:       rawPayload,
		model.TableCourses:     rawPayload,
		model.TableClasses:     classPayload,
		model.TableUsers:       userPayloadBuilder(district),
		model.TableEnrollments: enrollmentPayload,
	}
}

// rawPayload passes the stored record through unchanged.
func rawPayload(line *model.DataSyncLine, _ lineLookup) (json.RawMessage, error) {
	return json.RawMessage(line.RawData), nil
}

// classPayload needs the course's and school's assigned target ids and the
// term's target id, defaulting when the term is absent.
func classPayload(line *model.DataSyncLine, lookup lineLookup) (json.RawMessage, error) {
	var class roster.Class
	if err := json.Unmarshal(line.RawData, &class); err != nil {
		return nil, fmt.Errorf("failed to parse class %s: %w", line.SourcedID, err)
	}

	courseTarget, err := targetOf(lookup, model.TableCourses, class.CourseSourcedID)
	if err != nil {
		return nil, err
	}
	schoolTarget, err := targetOf(lookup, model.TableOrgs, class.SchoolSourcedID)
	if err != nil {
		return nil, err
	}

	termTarget := defaultTermTargetID
	for _, termID := range splitList(class.TermSourcedIDs) {
		if t, err := targetOf(lookup, model.TableTerms, termID); err == nil {
			termTarget = t
			break
		}
	}

	return json.Marshal(struct {
		roster.Class
		CourseTargetID string `json:"courseTargetId"`
		SchoolTargetID string `json:"schoolTargetId"`
		TermTargetID   string `json:"termTargetId"`
	}{
		Class:          class,
		CourseTargetID: courseTarget,
		SchoolTargetID: schoolTarget,
		TermTargetID:   termTarget,
	})
}

// userPayloadBuilder applies the district's field-mapping rules for
// username, email and password. A user whose org is not applied yet is
// skipped for this pass.
func userPayloadBuilder(district *model.District) payloadBuilder {
	return func(line *model.DataSyncLine, lookup lineLookup) (json.RawMessage, error) {
		var user roster.User
		if err := json.Unmarshal(line.RawData, &user); err != nil {
			return nil, fmt.Errorf("failed to parse user %s: %w", line.SourcedID, err)
		}

		orgs := splitList(user.OrgSourcedIDs)
		if len(orgs) == 0 {
			return nil, errSkipDependency
		}
		if _, err := targetOf(lookup, model.TableOrgs, orgs[0]); err != nil {
			return nil, err
		}

		switch district.UsernameSource {
		case model.UsernameSourceEmail:
			user.Username = user.Email
		case model.UsernameSourceSourcedID:
			user.Username = user.SourcedID
		}
		if user.Email == "" && district.EmailDomain != "" && user.Username != "" {
			user.Email = user.Username + "@" + district.EmailDomain
		}
		if user.Password == "" {
			user.Password = district.InitialPassword
		}

		return json.Marshal(user)
	}
}

// enrollmentPayload resolves the class and user target ids.
func enrollmentPayload(line *model.DataSyncLine, lookup lineLookup) (json.RawMessage, error) {
	var enr roster.Enrollment
	if err := json.Unmarshal(line.RawData, &enr); err != nil {
		return nil, fmt.Errorf("failed to parse enrollment %s: %w", line.SourcedID, err)
	}

	classTarget, err := targetOf(lookup, model.TableClasses, enr.ClassSourcedID)
	if err != nil {
		return nil, err
	}
	userTarget, err := targetOf(lookup, model.TableUsers, enr.UserSourcedID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(struct {
		roster.Enrollment
		ClassTargetID string `json:"classTargetId"`
		UserTargetID  string `json:"userTargetId"`
	}{
		Enrollment:    enr,
		ClassTargetID: classTarget,
		UserTargetID:  userTarget,
	})
}

// targetOf returns the target id of a referenced line, or errSkipDependency
// when the line is missing, excluded or not yet applied.
func targetOf(lookup lineLookup, table model.CSVTable, sourcedID string) (string, error) {
	if sourcedID == "" {
		return "", errSkipDependency
	}
	line, err := lookup(table, sourcedID)
	if err != nil {
		return "", err
	}
	if line == nil || !line.IncludeInSync || line.TargetID == nil || *line.TargetID == "" {
		return "", errSkipDependency
	}
	return *line.TargetID, nil
}
