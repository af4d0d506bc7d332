package sync

import (
	"strings"

	"rostersync/internal/roster"
)

// ncesResolver maps a school org to the NCES identifier the LMS requires on
// enrollment calls. Schools that fail resolution are remembered for the rest
// of the apply pass so they are not retried per user.
type ncesResolver struct {
	districtCode string
	fallback     map[string]string
	skip         map[string]struct{}
}

func newNCESResolver(districtCode string, fallback map[string]string) *ncesResolver {
	return &ncesResolver{
		districtCode: districtCode,
		fallback:     fallback,
		skip:         map[string]struct{}{},
	}
}

// Resolve returns the NCES school id for an org, or false when the org has
// no resolvable identifier. Resolution order: direct NCES identifier,
// district-code prefix match, fallback table by school name.
func (r *ncesResolver) Resolve(org *roster.Org) (string, bool) {
	if _, skipped := r.skip[org.SourcedID]; skipped {
		return "", false
	}

	id := strings.TrimSpace(org.Identifier)
	if isNCESID(id) {
		return id, true
	}
	if r.districtCode != "" && id != "" && strings.HasPrefix(id, r.districtCode) {
		return id, true
	}
	if nces, ok := r.fallback[normalizeSchoolName(org.Name)]; ok {
		return nces, true
	}

	r.skip[org.SourcedID] = struct{}{}
	return "", false
}

// Skipped reports whether the org already failed resolution this pass.
func (r *ncesResolver) Skipped(sourcedID string) bool {
	_, ok := r.skip[sourcedID]
	return ok
}

// normalizeSchoolName makes fallback lookups insensitive to case and
// surrounding whitespace.
func normalizeSchoolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// isNCESID checks the 12-digit NCES school id format.
func isNCESID(s string) bool {
	if len(s) != 12 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
