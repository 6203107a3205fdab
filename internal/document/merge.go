package document

import (
	"sort"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// entity is implemented by every ID-carrying record in the document.
type entity interface {
	EntityID() string
	ModifiedAt() time.Time
}

func (c Course) EntityID() string                { return c.ID }
func (c Course) ModifiedAt() time.Time           { return c.UpdatedAt }
func (a Assignment) EntityID() string            { return a.ID }
func (a Assignment) ModifiedAt() time.Time       { return a.UpdatedAt }
func (c Client) EntityID() string                { return c.ID }
func (c Client) ModifiedAt() time.Time           { return c.UpdatedAt }
func (p FreelanceProject) EntityID() string      { return p.ID }
func (p FreelanceProject) ModifiedAt() time.Time { return p.UpdatedAt }
func (p CodeProject) EntityID() string           { return p.ID }
func (p CodeProject) ModifiedAt() time.Time      { return p.UpdatedAt }
func (a Account) EntityID() string               { return a.ID }
func (a Account) ModifiedAt() time.Time          { return a.UpdatedAt }
func (t Transaction) EntityID() string           { return t.ID }
func (t Transaction) ModifiedAt() time.Time      { return t.UpdatedAt }
func (i Installment) EntityID() string           { return i.ID }
func (i Installment) ModifiedAt() time.Time      { return i.UpdatedAt }
func (g Goal) EntityID() string                  { return g.ID }
func (g Goal) ModifiedAt() time.Time             { return g.UpdatedAt }
func (b Budget) EntityID() string                { return b.ID }
func (b Budget) ModifiedAt() time.Time           { return b.UpdatedAt }
func (n Note) EntityID() string                  { return n.ID }
func (n Note) ModifiedAt() time.Time             { return n.UpdatedAt }

// unionByID merges two entity lists. Every ID present on either side
// survives; on a collision the entity with the later ModifiedAt wins
// (local wins an exact tie, so the result does not depend on argument
// content beyond the inputs). The result is sorted by ID, which makes
// the merge deterministic regardless of input ordering.
func unionByID[T entity](local, remote []T) []T {
	byID := make(map[string]T, len(local)+len(remote))

	for _, e := range local {
		byID[e.EntityID()] = e
	}

	for _, e := range remote {
		cur, ok := byID[e.EntityID()]
		if !ok || e.ModifiedAt().After(cur.ModifiedAt()) {
			byID[e.EntityID()] = e
		}
	}

	out := make([]T, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].EntityID() < out[j].EntityID()
	})

	return out
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}

	return b
}

// Merge combines a local and a remote document into one. Entity lists
// union by ID with the newer entity winning collisions; scalar settings
// come from whichever Settings section was updated later. base, when
// non-nil, is the last-synced snapshot and enables a three-way merge of
// note bodies both sides edited. The merge is deterministic and never
// drops an entity present on either side.
func Merge(local, remote Document, base *Document) Document {
	var baseNotes []Note
	if base != nil {
		baseNotes = base.Misc.Notes
	}

	merged := Document{
		University: University{
			Courses:     unionByID(local.University.Courses, remote.University.Courses),
			Assignments: unionByID(local.University.Assignments, remote.University.Assignments),
			UpdatedAt:   laterOf(local.University.UpdatedAt, remote.University.UpdatedAt),
		},
		Freelancing: Freelancing{
			Clients:   unionByID(local.Freelancing.Clients, remote.Freelancing.Clients),
			Projects:  unionByID(local.Freelancing.Projects, remote.Freelancing.Projects),
			UpdatedAt: laterOf(local.Freelancing.UpdatedAt, remote.Freelancing.UpdatedAt),
		},
		Programming: Programming{
			Projects:  unionByID(local.Programming.Projects, remote.Programming.Projects),
			UpdatedAt: laterOf(local.Programming.UpdatedAt, remote.Programming.UpdatedAt),
		},
		Finance: Finance{
			Accounts:     unionByID(local.Finance.Accounts, remote.Finance.Accounts),
			Expenses:     unionByID(local.Finance.Expenses, remote.Finance.Expenses),
			Income:       unionByID(local.Finance.Income, remote.Finance.Income),
			Installments: unionByID(local.Finance.Installments, remote.Finance.Installments),
			Goals:        unionByID(local.Finance.Goals, remote.Finance.Goals),
			Budgets:      unionByID(local.Finance.Budgets, remote.Finance.Budgets),
			UpdatedAt:    laterOf(local.Finance.UpdatedAt, remote.Finance.UpdatedAt),
		},
		Misc: Misc{
			Notes:     mergeNotes(local.Misc.Notes, remote.Misc.Notes, baseNotes),
			UpdatedAt: laterOf(local.Misc.UpdatedAt, remote.Misc.UpdatedAt),
		},
		Settings: mergeSettings(local.Settings, remote.Settings),
	}

	return merged
}

// mergeSettings picks the later-updated Settings section wholesale,
// except LastBackupTime where the later timestamp always wins so a
// completed backup is never forgotten by the scheduler.
func mergeSettings(local, remote Settings) Settings {
	out := local
	if remote.UpdatedAt.After(local.UpdatedAt) {
		out = remote
	}

	out.Backup.LastBackupTime = laterOf(local.Backup.LastBackupTime, remote.Backup.LastBackupTime)

	return out
}

// mergeNotes unions notes by ID like every other entity list, but when
// both sides edited the same note's body since the last-synced base, it
// attempts a three-way text merge instead of discarding one side.
func mergeNotes(local, remote, base []Note) []Note {
	baseByID := make(map[string]Note, len(base))
	for _, n := range base {
		baseByID[n.ID] = n
	}

	localByID := make(map[string]Note, len(local))
	for _, n := range local {
		localByID[n.ID] = n
	}

	merged := unionByID(local, remote)

	for i, n := range merged {
		ln, hasLocal := localByID[n.ID]
		bn, hasBase := baseByID[n.ID]

		if !hasLocal || !hasBase {
			continue
		}

		// Find the remote counterpart; unionByID kept one of the two.
		var rn *Note

		for j := range remote {
			if remote[j].ID == n.ID {
				rn = &remote[j]
				break
			}
		}

		if rn == nil {
			continue
		}

		// Only three-way merge when both sides actually diverged from
		// the base body.
		if ln.Body == bn.Body || rn.Body == bn.Body || ln.Body == rn.Body {
			continue
		}

		merged[i].Body = mergeNoteBody(bn.Body, ln.Body, rn.Body)
		merged[i].UpdatedAt = laterOf(ln.UpdatedAt, rn.UpdatedAt)
	}

	return merged
}

// conflictMarker separates the two bodies when a three-way patch does
// not apply cleanly. Both versions are preserved for manual cleanup.
const conflictMarker = "\n\n--- conflicting local version ---\n\n"

// mergeNoteBody applies the local edits (relative to base) on top of
// the remote body. If any patch fails, the remote body wins and the
// local body is appended under a conflict marker so no text is lost.
func mergeNoteBody(base, local, remote string) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(base, local, true)
	patches := dmp.PatchMake(base, diffs)

	merged, applied := dmp.PatchApply(patches, remote)
	for _, ok := range applied {
		if !ok {
			return remote + conflictMarker + local
		}
	}

	return merged
}
