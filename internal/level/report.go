package level

// Reasons an identifier can land in the unmatched report.
const (
	ReasonUnknownFormat    = "unknown-format"
	ReasonUnknownInCatalog = "unknown-in-catalog"
	ReasonLevelConflict    = "cross-level-conflict"
)

// Unmatched is one identifier that could not be resolved to geometry.
type Unmatched struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Report collects identifiers that could not be resolved, partitioned by
// reason. It is surfaced to the caller alongside the assembled regions and is
// never a substitute for a render: rows it names are skipped, not fatal.
type Report struct {
	Entries []Unmatched `json:"entries"`
}

// Add appends an entry to the report.
func (r *Report) Add(id, reason, detail string) {
	r.Entries = append(r.Entries, Unmatched{ID: id, Reason: reason, Detail: detail})
}

// Merge appends all entries from another report.
func (r *Report) Merge(other Report) {
	r.Entries = append(r.Entries, other.Entries...)
}

// Empty reports whether the report has no entries.
func (r *Report) Empty() bool {
	return len(r.Entries) == 0
}

// ByReason returns the identifiers recorded under one reason.
func (r *Report) ByReason(reason string) []string {
	var ids []string
	for _, e := range r.Entries {
		if e.Reason == reason {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Len returns the number of entries.
func (r *Report) Len() int {
	return len(r.Entries)
}
