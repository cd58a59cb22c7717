package types

import "time"

// Cruise is a top-level data-collection episode. At most one cruise is
// "current" at any time.
type Cruise struct {
	ID          string
	StartDate   time.Time
	EndDate     time.Time
	FinalizedOn time.Time // zero value means not finalized
}

// IsFinalized reports whether the cruise has been finalized.
func (c *Cruise) IsFinalized() bool {
	return !c.FinalizedOn.IsZero()
}

// Lowering is a nested sub-episode within a cruise (e.g. one ROV dive).
type Lowering struct {
	ID          string
	CruiseID    string
	StartDate   time.Time
	EndDate     time.Time
	FinalizedOn time.Time
}

// IsFinalized reports whether the lowering has been finalized.
func (l *Lowering) IsFinalized() bool {
	return !l.FinalizedOn.IsZero()
}

// Status is the shared state-machine value for collection/cruise
// transfers and tasks.
type Status int

const (
	StatusRunning Status = 1
	StatusIdle    Status = 2
	StatusError   Status = 3
	StatusUnused  Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusIdle:
		return "idle"
	case StatusError:
		return "error"
	case StatusUnused:
		return "unused"
	default:
		return "unknown"
	}
}

// TransferType identifies one of the source/sink kinds a transfer moves
// bytes through.
type TransferType int

const (
	TransferTypeLocal TransferType = iota
	TransferTypeRsync
	TransferTypeSMB
	TransferTypeSSH
)

func (t TransferType) String() string {
	switch t {
	case TransferTypeLocal:
		return "local"
	case TransferTypeRsync:
		return "rsync"
	case TransferTypeSMB:
		return "smb"
	case TransferTypeSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

// Scope distinguishes whether a transfer's destination template is
// rooted at the cruise or at the current lowering.
type Scope int

const (
	ScopeCruise Scope = iota
	ScopeLowering
)

// TransferCredentials holds the union of kind-specific connection
// details. Only the fields relevant to the owning transfer's
// TransferType are meaningful.
type TransferCredentials struct {
	Server   string
	Domain   string // smb only
	Username string
	Password string
	UseGuest bool // smb only: anonymous bind

	SourceModule string // rsync module name, or remote path for ssh/sftp

	PrivateKeyPath string // ssh key auth, alternative to Password
}

// CollectionSystemTransfer is an inbound pipeline from one acquisition
// source into the cruise tree.
type CollectionSystemTransfer struct {
	ID           string
	Name         string
	Enabled      bool
	Status       Status
	TransferType TransferType
	SourceDir    string
	DestDir      string // token template, e.g. "raw/{cruiseID}/{loweringID}/nav"
	Scope        Scope

	SyncFromSource    bool // delete-to-mirror
	StalenessSeconds  int
	BandwidthLimitKB  int
	RemoveSourceFiles bool
	SkipEmptyFiles    bool
	SkipEmptyDirs     bool
	UseStartDate      bool

	IncludeFilter []string
	ExcludeFilter []string
	IgnoreFilter  []string

	Credentials TransferCredentials

	TestStatus Status // shadow state for the "-test" connection-check variant
}

// CruiseDataTransfer is an outbound pipeline from the assembled cruise
// tree to an external destination.
type CruiseDataTransfer struct {
	ID           string
	Name         string
	Enabled      bool
	Status       Status
	TransferType TransferType
	DestDir      string

	IsShipToShore    bool
	BandwidthLimitKB int

	ExcludeOVDMFiles          bool
	ExcludedCollectionSystems []string
	ExcludedExtraDirectories  []string
	ExcludeLoweringData       bool

	Credentials TransferCredentials

	TestStatus Status // shadow state for the "-test" connection-check variant
}

// ShipToShoreTransfer is a prioritized include-filter bundle selecting a
// subset of the cruise for the bandwidth-limited shore path.
type ShipToShoreTransfer struct {
	ID                 string
	Priority           int // 1 (highest) .. 5 (lowest)
	CollectionSystemID string // "" if not scoped to a collection system
	ExtraDirectoryID   string // "" if not scoped to an extra directory
	IncludeFilter      []string
	Required           bool
}

// ExtraDirectory is an additional destination directory rooted under
// the cruise or lowering root.
type ExtraDirectory struct {
	ID       string
	Name     string
	DestDir  string
	Enabled  bool
	Required bool
	Scope    Scope
}

// SyntheticTaskID is the well-known id used by built-in tasks that the
// control plane does not persist state for.
const SyntheticTaskID = "0"

// Task is a named, persistent unit of work whose status shares the
// transfer state machine.
type Task struct {
	ID       string
	Name     string
	LongName string
	Status   Status

	TestStatus Status // shadow state for "-test" variants, when applicable
}

// IsSynthetic reports whether this task record is a built-in, ad-hoc
// task that the control plane does not persist state for.
func (t *Task) IsSynthetic() bool {
	return t.ID == SyntheticTaskID
}

// ShipboardDataWarehouseConfig is the set of base paths, filenames, and
// policy toggles shared by every handler that touches the warehouse
// filesystem.
type ShipboardDataWarehouseConfig struct {
	BaseDir             string
	LoweringDataBaseDir string // subdirectory name, e.g. "Lowerings"
	OwnerUser           string // unix username chown'd onto written files

	MD5SummaryFn            string
	MD5SummaryMD5Fn         string
	CruiseConfigFn          string
	LoweringConfigFn        string
	DataDashboardManifestFn string

	DataDashboardDir string // relative to cruise root
	TransferLogsDir  string // relative to cruise root
	PublicDataDir    string // relative to cruise root

	ShowLoweringComponents   bool
	ShipToShoreBWLimitStatus bool
	TransferPublicData       bool
	ShowOnlyCurrentCruiseDir bool

	MD5FilesizeLimit       int64 // bytes; 0 means unlimited
	MD5FilesizeLimitStatus bool

	LogfilePurgeTimedelta string // e.g. "3 days 6 hours"
}

// CruiseDir returns the cruise root under the warehouse base directory.
func (w *ShipboardDataWarehouseConfig) CruiseDir(cruiseID string) string {
	return joinSlash(w.BaseDir, cruiseID)
}

// LoweringDir returns the lowering root nested under the cruise root.
func (w *ShipboardDataWarehouseConfig) LoweringDir(cruiseID, loweringID string) string {
	return joinSlash(w.CruiseDir(cruiseID), w.LoweringDataBaseDir, loweringID)
}

func joinSlash(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out == "" {
			out = p
			continue
		}
		out += "/" + p
	}
	return out
}

// JobPayload is the free-form map carried as a JSON string over the
// broker. Handlers decode the subset of keys they need via the typed
// accessors below rather than indexing the map directly at call sites.
type JobPayload map[string]any

// String returns payload[key] as a string, or "" if absent or of the
// wrong type.
func (p JobPayload) String(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// StringSlice returns payload[key] as a []string, or nil if absent.
func (p JobPayload) StringSlice(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	if ss, ok := v.([]string); ok {
		return ss
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// FileSet is the {new, updated, deleted, exclude} bundle a transfer
// handler attaches to its completion result and that post-hook jobs
// receive as a snapshot.
type FileSet struct {
	New     []string `json:"new,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// JobResultCode is the per-part verdict a handler reports.
type JobResultCode string

const (
	ResultPass   JobResultCode = "Pass"
	ResultFail   JobResultCode = "Fail"
	ResultIgnore JobResultCode = "Ignore"
)

// JobPart is one named step's verdict within a handler's execution.
type JobPart struct {
	PartName string        `json:"partName"`
	Result   JobResultCode `json:"result"`
	Reason   string        `json:"reason,omitempty"`
}

// JobResult is what a task handler returns to the worker runtime. The
// last element of Parts is the handler's final verdict.
type JobResult struct {
	Parts []JobPart `json:"parts"`
	Files *FileSet  `json:"files,omitempty"`
}

// FinalVerdict returns the last part's result, or ResultIgnore if Parts
// is empty (a no-op handler run).
func (r JobResult) FinalVerdict() JobResultCode {
	if len(r.Parts) == 0 {
		return ResultIgnore
	}
	return r.Parts[len(r.Parts)-1].Result
}

// FinalReason returns the last part's reason, used as the message body
// posted to the control plane on Fail.
func (r JobResult) FinalReason() string {
	if len(r.Parts) == 0 {
		return ""
	}
	return r.Parts[len(r.Parts)-1].Reason
}
