package asset

import (
	"fmt"
	"time"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// Scope names one campaign of one station of one network.
type Scope struct {
	Network  string
	Station  string
	Campaign string
}

func (s Scope) String() string {
	return s.Network + "/" + s.Station + "/" + s.Campaign
}

// Complete reports whether all three levels are set.
func (s Scope) Complete() bool {
	return s.Network != "" && s.Station != "" && s.Campaign != ""
}

// Record describes one file, raw or derived.
type Record struct {
	ID         int64
	Type       Type
	LocalPath  string
	RemotePath string
	RemoteType RemoteType
	Network    string
	Station    string
	Campaign   string
	TimeStart  *time.Time
	TimeEnd    *time.Time
	CreatedAt  time.Time
	ParentID   *int64
	Processed  bool
}

// Scope returns the campaign scope of the record.
func (r *Record) Scope() Scope {
	return Scope{Network: r.Network, Station: r.Station, Campaign: r.Campaign}
}

// StorageRef returns the local path if set, else the remote path.
func (r *Record) StorageRef() string {
	if r.LocalPath != "" {
		return r.LocalPath
	}
	return r.RemotePath
}

// HasParent reports whether the record is derived from another asset.
func (r *Record) HasParent() bool {
	return r.ParentID != nil && *r.ParentID > 0
}

// Validate evaluates the record invariants.
// Rules:
// - Type must be known
// - Network, station and campaign must be set
// - A storage reference (local or remote) must be present
// - time_start <= time_end when both are present
func Validate(r *Record) GuardResult {
	if r == nil {
		return GuardResult{Allowed: false, Reason: "record is nil"}
	}
	if !r.Type.Valid() {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown asset type %q", r.Type)}
	}
	if r.Network == "" || r.Station == "" || r.Campaign == "" {
		return GuardResult{Allowed: false, Reason: "network, station and campaign are required"}
	}
	if r.StorageRef() == "" {
		return GuardResult{Allowed: false, Reason: "record has no local or remote path"}
	}
	if r.TimeStart != nil && r.TimeEnd != nil && r.TimeStart.After(*r.TimeEnd) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("time_start %s is after time_end %s", r.TimeStart.Format(time.RFC3339), r.TimeEnd.Format(time.RFC3339)),
		}
	}
	return GuardResult{Allowed: true}
}

// CanMarkProcessed evaluates whether a record may flip to processed.
func CanMarkProcessed(r *Record) GuardResult {
	if r.StorageRef() == "" {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("asset %d has no storage reference", r.ID)}
	}
	return GuardResult{Allowed: true}
}

// IDs returns the ids of the given records in order.
func IDs(records []*Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
