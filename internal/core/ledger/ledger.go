// Package ledger contains the pure logic of the merge-job ledger: canonical
// idempotency keys and the proceed/skip decision.
package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/sfg/internal/core/asset"
)

// Key identifies one parent→child transformation. ParentIDs may be catalog
// ids or string signatures (date lists, RINEX signatures).
type Key struct {
	ParentType string
	ChildType  string
	ParentIDs  []string
}

// NewKey builds a key from numeric catalog ids.
func NewKey(parent, child asset.Type, ids []int64) Key {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.FormatInt(id, 10)
	}
	return Key{ParentType: string(parent), ChildType: string(child), ParentIDs: s}
}

// SignatureKey builds a key from free-form signatures.
func SignatureKey(parent, child asset.Type, sigs ...string) Key {
	return Key{ParentType: string(parent), ChildType: string(child), ParentIDs: sigs}
}

// Canonical returns the sorted, de-duplicated parent set joined with "-".
// Numeric ids sort numerically and precede non-numeric signatures.
func (k Key) Canonical() string {
	seen := make(map[string]struct{}, len(k.ParentIDs))
	ids := make([]string, 0, len(k.ParentIDs))
	for _, id := range k.ParentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, aErr := strconv.ParseInt(ids[i], 10, 64)
		b, bErr := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return strings.Join(ids, "-")
}

// Empty reports whether the key carries no parents.
func (k Key) Empty() bool { return k.Canonical() == "" }

func (k Key) String() string {
	return fmt.Sprintf("%s->%s[%s]", k.ParentType, k.ChildType, k.Canonical())
}

// Entry is a completed merge job.
type Entry struct {
	ID          int64
	Key         Key
	CompletedAt time.Time
}

// ProceedContext carries the pre-fetched ledger state for a key.
type ProceedContext struct {
	Key      Key
	Complete bool
	Override bool
}

// CanProceed decides whether a stage may run for a key.
// Rules:
// - empty keys never proceed
// - a completed key proceeds only under override
func CanProceed(ctx ProceedContext) asset.GuardResult {
	if ctx.Key.Empty() {
		return asset.GuardResult{Allowed: false, Reason: fmt.Sprintf("%s: %s", ctx.Key, asset.ErrNoCandidates)}
	}
	if ctx.Complete && !ctx.Override {
		return asset.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("merge job %s already completed; rerun with --override to force", ctx.Key),
		}
	}
	return asset.GuardResult{Allowed: true}
}
