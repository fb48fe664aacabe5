package model

// Disposition is the analyzer's classification of an import row.
type Disposition string

const (
	DispositionNew       Disposition = "new"
	DispositionDuplicate Disposition = "duplicate"
	DispositionConflict  Disposition = "conflict"
)

// Decision is an optional reviewer instruction attached to a row.
type Decision string

const (
	DecisionNone   Decision = ""
	DecisionSkip   Decision = "skip"
	DecisionCreate Decision = "create"
	DecisionUpdate Decision = "update"
)

// ResultStatus is the persisted outcome of executing a row.
type ResultStatus string

const (
	ResultImported ResultStatus = "imported"
	ResultSkipped  ResultStatus = "skipped"
)

// Action is the finer-grained outcome behind a ResultStatus.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionError   Action = "error"
)

// Conflict is one field whose incoming value disagrees with the matched contact.
// Keep is reserved for the reviewer's resolution.
type Conflict struct {
	Field    Field   `json:"field"`
	Existing string  `json:"existing"`
	New      string  `json:"new"`
	Keep     *string `json:"keep"`
}

// ImportRow is one analyzed line of an import file.
type ImportRow struct {
	ID               string            `json:"id"`
	JobID            string            `json:"job_id"`
	RowNumber        int               `json:"row_number"`
	RawData          map[string]string `json:"raw_data"`
	MappedData       *ContactFields    `json:"mapped_data"`
	Disposition      Disposition       `json:"disposition"`
	MatchedContactID string            `json:"matched_contact_id,omitempty"`
	MatchConfidence  float64           `json:"match_confidence,omitempty"`
	Conflicts        []Conflict        `json:"conflicts,omitempty"`
	Decision         Decision          `json:"decision,omitempty"`
	OverwriteFields  []Field           `json:"overwrite_fields,omitempty"`
	ResultStatus     ResultStatus      `json:"result_status,omitempty"`
	ResultContactID  string            `json:"result_contact_id,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// RowOutcome is what the executor records on a row.
type RowOutcome struct {
	Status    ResultStatus
	Action    Action
	ContactID string
	Error     string
}
