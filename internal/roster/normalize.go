package roster

import (
	"fmt"
	"strings"
)

// NormalizeUser validates and normalizes a user record in place before it is
// diffed against stored state. A user without an org reference is a feed
// regression and fails the load.
func NormalizeUser(u *User) error {
	if strings.TrimSpace(u.OrgSourcedIDs) == "" {
		return fmt.Errorf("user %s has no orgSourcedIds", u.SourcedID)
	}

	if strings.TrimSpace(u.EnabledUser) == "" {
		u.EnabledUser = "true"
	}

	u.GivenName = titleCase(strings.TrimSpace(u.GivenName))
	u.FamilyName = titleCase(strings.TrimSpace(u.FamilyName))
	u.MiddleName = titleCase(strings.TrimSpace(u.MiddleName))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))

	return nil
}

// titleCase upper-cases the first letter of each word and lower-cases the
// rest. Feed exports frequently arrive all-caps.
func titleCase(s string) string {
	if s == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
