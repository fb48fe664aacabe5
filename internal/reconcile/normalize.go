package reconcile

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kairo-crm/intake/internal/model"
)

// dateLayouts are tried in order; the four-digit year forms come first so
// "15/01/2000" never parses as a two-digit year.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02/01/06",
}

// ParseDate normalizes a date to YYYY-MM-DD. ok is false for anything that
// matches none of the accepted layouts.
func ParseDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(model.DateLayout), true
		}
	}
	return "", false
}

var nonNumeric = regexp.MustCompile(`[^\d.]`)

// ParseBudget strips everything but digits and dots and parses the rest.
func ParseBudget(value string) (float64, bool) {
	cleaned := nonNumeric.ReplaceAllString(value, "")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SplitTags splits on commas and semicolons, dropping blanks.
func SplitTags(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var roleSynonyms = map[string]model.Role{
	"comprador": model.RoleBuyer, "cliente comprador": model.RoleBuyer, "purchaser": model.RoleBuyer,
	"home buyer": model.RoleBuyer, "property buyer": model.RoleBuyer, "buying": model.RoleBuyer,
	"vendedor": model.RoleSeller, "cliente vendedor": model.RoleSeller, "home seller": model.RoleSeller,
	"property seller": model.RoleSeller, "selling": model.RoleSeller, "owner": model.RoleSeller,
	"prestamista": model.RoleLender, "mortgage": model.RoleLender, "bank": model.RoleLender,
	"financiero": model.RoleLender, "loan officer": model.RoleLender, "mortgage broker": model.RoleLender,
	"inquilino": model.RoleTenant, "arrendatario": model.RoleTenant, "renter": model.RoleTenant,
	"lessee": model.RoleTenant, "rentee": model.RoleTenant,
	"propietario": model.RoleLandlord, "arrendador": model.RoleLandlord, "property owner": model.RoleLandlord,
	"lessor": model.RoleLandlord, "rental owner": model.RoleLandlord,
	"otro": model.RoleOther, "otros": model.RoleOther, "unknown": model.RoleOther, "n/a": model.RoleOther,
}

// NormalizeRole maps a free-text role to the enum: exact value, then a
// synonym, then the first enum value contained in the text.
func NormalizeRole(value string) (model.Role, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "", false
	}
	if r := model.Role(v); r.Valid() {
		return r, true
	}
	if r, ok := roleSynonyms[v]; ok {
		return r, true
	}
	for _, r := range model.Roles {
		if strings.Contains(v, string(r)) {
			return r, true
		}
	}
	return "", false
}

var categorySynonyms = map[string]model.Category{
	"potencial_comprador":   model.CategoryPotentialBuyer,
	"potencial_vendedor":    model.CategoryPotentialSeller,
	"comprador_firmado":     model.CategorySignedBuyer,
	"vendedor_firmado":      model.CategorySignedSeller,
	"potencial_prestamista": model.CategoryPotentialLender,
	"potencial_inquilino":   model.CategoryPotentialTenant,
}

var categorySeparators = strings.NewReplacer(" ", "_", "-", "_")

// NormalizeCategory maps a free-text category to the enum. Spaces and dashes
// count as underscores; the containment fallback ignores underscores.
func NormalizeCategory(value string) (model.Category, bool) {
	v := categorySeparators.Replace(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return "", false
	}
	if c := model.Category(v); c.Valid() {
		return c, true
	}
	if c, ok := categorySynonyms[v]; ok {
		return c, true
	}
	flat := strings.ReplaceAll(v, "_", "")
	for _, c := range model.Categories {
		if strings.Contains(flat, strings.ReplaceAll(string(c), "_", "")) {
			return c, true
		}
	}
	return "", false
}

// ApplyMapping builds the canonical field bag for one raw row. Values are
// trimmed; blank and unparseable values are left unset.
func ApplyMapping(raw map[string]string, mapping Mapping) *model.ContactFields {
	f := &model.ContactFields{}
	for header, field := range mapping {
		value := strings.TrimSpace(raw[header])
		if value == "" {
			continue
		}
		switch field {
		case model.FieldTags:
			f.Tags = SplitTags(value)
		case model.FieldBudgetMin:
			if v, ok := ParseBudget(value); ok {
				f.BudgetMin = &v
			}
		case model.FieldBudgetMax:
			if v, ok := ParseBudget(value); ok {
				f.BudgetMax = &v
			}
		case model.FieldDateOfBirth:
			if d, ok := ParseDate(value); ok {
				f.DateOfBirth = d
			}
		case model.FieldRole:
			if r, ok := NormalizeRole(value); ok {
				f.Role = r
			}
		case model.FieldCategory:
			if c, ok := NormalizeCategory(value); ok {
				f.Category = c
			}
		default:
			f.SetText(field, value)
		}
	}
	return f
}
