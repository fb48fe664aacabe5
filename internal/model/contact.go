package model

import (
	"strconv"
	"strings"
	"time"
)

// Field is a canonical contact field name.
type Field string

const (
	FieldFirstName      Field = "first_name"
	FieldLastName       Field = "last_name"
	FieldEmail          Field = "email"
	FieldPhone          Field = "phone"
	FieldCompany        Field = "company"
	FieldJobTitle       Field = "job_title"
	FieldAddressStreet  Field = "address_street"
	FieldAddressCity    Field = "address_city"
	FieldAddressState   Field = "address_state"
	FieldAddressZip     Field = "address_zip"
	FieldAddressCountry Field = "address_country"
	FieldSource         Field = "source"
	FieldNotes          Field = "notes"
	FieldBudgetMin      Field = "budget_min"
	FieldBudgetMax      Field = "budget_max"
	FieldDateOfBirth    Field = "date_of_birth"
	FieldPlaceOfBirth   Field = "place_of_birth"
	FieldTags           Field = "tags"
	FieldRole           Field = "role"
	FieldCategory       Field = "category"
)

// CanonicalFields lists every contact field in mapping priority order.
var CanonicalFields = []Field{
	FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldCompany,
	FieldJobTitle, FieldAddressStreet, FieldAddressCity, FieldAddressState,
	FieldAddressZip, FieldAddressCountry, FieldSource, FieldNotes,
	FieldBudgetMin, FieldBudgetMax, FieldDateOfBirth, FieldPlaceOfBirth,
	FieldTags, FieldRole, FieldCategory,
}

// ConflictFields are the non-identity fields diffed against a matched contact.
var ConflictFields = []Field{
	FieldPhone, FieldCompany, FieldJobTitle, FieldAddressStreet,
	FieldAddressCity, FieldAddressState, FieldAddressZip, FieldAddressCountry,
	FieldNotes, FieldDateOfBirth, FieldPlaceOfBirth, FieldRole, FieldCategory,
}

// FieldKind is the storage shape of a field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindDate
	KindList
)

// Kind reports how f is stored.
func (f Field) Kind() FieldKind {
	switch f {
	case FieldBudgetMin, FieldBudgetMax:
		return KindNumber
	case FieldDateOfBirth:
		return KindDate
	case FieldTags:
		return KindList
	default:
		return KindText
	}
}

// IsCanonical reports whether f is a known contact field.
func (f Field) IsCanonical() bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// DateLayout is the canonical date encoding.
const DateLayout = "2006-01-02"

// ContactFields is the typed field bag shared by contacts and mapped rows.
// Empty strings, nil budgets and empty tag lists mean "not set".
type ContactFields struct {
	FirstName      string   `json:"first_name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Company        string   `json:"company,omitempty"`
	JobTitle       string   `json:"job_title,omitempty"`
	AddressStreet  string   `json:"address_street,omitempty"`
	AddressCity    string   `json:"address_city,omitempty"`
	AddressState   string   `json:"address_state,omitempty"`
	AddressZip     string   `json:"address_zip,omitempty"`
	AddressCountry string   `json:"address_country,omitempty"`
	Source         string   `json:"source,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	BudgetMin      *float64 `json:"budget_min,omitempty"`
	BudgetMax      *float64 `json:"budget_max,omitempty"`
	DateOfBirth    string   `json:"date_of_birth,omitempty"`
	PlaceOfBirth   string   `json:"place_of_birth,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Role           Role     `json:"role,omitempty"`
	Category       Category `json:"category,omitempty"`
}

// text returns a pointer to the string backing a text field, or nil.
func (c *ContactFields) text(f Field) *string {
	switch f {
	case FieldFirstName:
		return &c.FirstName
	case FieldLastName:
		return &c.LastName
	case FieldEmail:
		return &c.Email
	case FieldPhone:
		return &c.Phone
	case FieldCompany:
		return &c.Company
	case FieldJobTitle:
		return &c.JobTitle
	case FieldAddressStreet:
		return &c.AddressStreet
	case FieldAddressCity:
		return &c.AddressCity
	case FieldAddressState:
		return &c.AddressState
	case FieldAddressZip:
		return &c.AddressZip
	case FieldAddressCountry:
		return &c.AddressCountry
	case FieldSource:
		return &c.Source
	case FieldNotes:
		return &c.Notes
	case FieldDateOfBirth:
		return &c.DateOfBirth
	case FieldPlaceOfBirth:
		return &c.PlaceOfBirth
	}
	return nil
}

// SetText assigns a plain text field. It returns false for fields that need
// typed normalization (budgets, tags, role, category) or unknown names.
func (c *ContactFields) SetText(f Field, v string) bool {
	p := c.text(f)
	if p == nil || f == FieldDateOfBirth {
		return false
	}
	*p = v
	return true
}

// Has reports whether f carries a value.
func (c *ContactFields) Has(f Field) bool {
	return c.Text(f) != ""
}

// Text renders f as a string; empty when unset.
func (c *ContactFields) Text(f Field) string {
	if p := c.text(f); p != nil {
		return *p
	}
	switch f {
	case FieldBudgetMin:
		return formatBudget(c.BudgetMin)
	case FieldBudgetMax:
		return formatBudget(c.BudgetMax)
	case FieldTags:
		return strings.Join(c.Tags, ", ")
	case FieldRole:
		return string(c.Role)
	case FieldCategory:
		return string(c.Category)
	}
	return ""
}

// Value returns the storage value of f and whether it is set.
func (c *ContactFields) Value(f Field) (any, bool) {
	switch f {
	case FieldBudgetMin:
		if c.BudgetMin == nil {
			return nil, false
		}
		return *c.BudgetMin, true
	case FieldBudgetMax:
		if c.BudgetMax == nil {
			return nil, false
		}
		return *c.BudgetMax, true
	case FieldTags:
		if len(c.Tags) == 0 {
			return nil, false
		}
		return c.Tags, true
	case FieldDateOfBirth:
		if c.DateOfBirth == "" {
			return nil, false
		}
		d, err := time.Parse(DateLayout, c.DateOfBirth)
		if err != nil {
			return nil, false
		}
		return d, true
	}
	s := c.Text(f)
	return s, s != ""
}

// Present lists the set fields in canonical order.
func (c *ContactFields) Present() []Field {
	var out []Field
	for _, f := range CanonicalFields {
		if c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// FullName is "first last", trimmed.
func (c *ContactFields) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func formatBudget(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Contact is an existing CRM contact.
type Contact struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	ContactFields
}
