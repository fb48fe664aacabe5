package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
)

// DefaultRoleBatchSize is the number of contacts per classification call.
const DefaultRoleBatchSize = 20

// buyerBudgetThreshold separates buyers from tenants when only a budget is known.
const buyerBudgetThreshold = 100000

var lenderTitleKeywords = []string{"mortgage", "loan", "bank", "lending", "finance", "broker", "credit"}

// roleTextKeywords is scanned in order against notes and raw cell text.
var roleTextKeywords = []struct {
	role     model.Role
	keywords []string
}{
	{model.RoleBuyer, []string{"buying", "purchase", "looking for home", "house hunting", "comprar", "busca casa"}},
	{model.RoleSeller, []string{"selling", "list my", "own property", "vender", "mi casa"}},
	{model.RoleTenant, []string{"renting", "lease", "apartment", "alquiler", "piso"}},
	{model.RoleLandlord, []string{"rental property", "investment", "tenant", "inquilino", "alquilar mi"}},
}

// HeuristicRole deduces a role without external help. The same inputs always
// give the same role.
func HeuristicRole(f *model.ContactFields, raw map[string]string) model.Role {
	if f.Role.Valid() {
		return f.Role
	}

	category := string(f.Category)
	for _, r := range []model.Role{model.RoleBuyer, model.RoleSeller, model.RoleLender, model.RoleTenant} {
		if strings.Contains(category, string(r)) {
			return r
		}
	}

	if budget := budgetOf(f); budget > 0 {
		if budget >= buyerBudgetThreshold {
			return model.RoleBuyer
		}
		return model.RoleTenant
	}

	title := strings.ToLower(f.JobTitle)
	for _, kw := range lenderTitleKeywords {
		if strings.Contains(title, kw) {
			return model.RoleLender
		}
	}

	text := strings.ToLower(f.Notes) + " " + rawText(raw)
	for _, rk := range roleTextKeywords {
		for _, kw := range rk.keywords {
			if strings.Contains(text, kw) {
				return rk.role
			}
		}
	}
	return model.RoleOther
}

// budgetOf prefers the maximum budget; zero means no budget.
func budgetOf(f *model.ContactFields) float64 {
	if f.BudgetMax != nil && *f.BudgetMax != 0 {
		return *f.BudgetMax
	}
	if f.BudgetMin != nil {
		return *f.BudgetMin
	}
	return 0
}

// rawText joins non-empty cells sorted by header.
func rawText(raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := raw[k]; v != "" {
			parts = append(parts, strings.ToLower(v))
		}
	}
	return strings.Join(parts, " ")
}

// RoleDeducer fills missing roles, asking the classifier in batches and
// falling back to HeuristicRole per row.
type RoleDeducer struct {
	llm       llm.Completer
	batchSize int
}

// NewRoleDeducer creates a deducer. completer may be nil.
func NewRoleDeducer(completer llm.Completer, batchSize int) *RoleDeducer {
	if batchSize <= 0 {
		batchSize = DefaultRoleBatchSize
	}
	return &RoleDeducer{llm: completer, batchSize: batchSize}
}

// roleCandidate is one mapped row that may need a role.
type roleCandidate struct {
	fields *model.ContactFields
	raw    map[string]string
}

// Deduce sets a valid role on every candidate lacking one.
func (d *RoleDeducer) Deduce(ctx context.Context, rows []roleCandidate) {
	var pending []roleCandidate
	for _, r := range rows {
		if !r.fields.Role.Valid() {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return
	}

	for start := 0; start < len(pending); start += d.batchSize {
		end := min(start+d.batchSize, len(pending))
		batch := pending[start:end]

		var roles []string
		if d.llm != nil {
			var err error
			roles, err = d.classify(ctx, batch)
			if err != nil {
				zap.L().Warn("reconcile: role classification failed, using heuristic",
					zap.Int("batch_start", start),
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
				roles = nil
			}
		}

		for i, c := range batch {
			if i < len(roles) {
				if r := model.Role(strings.ToLower(strings.TrimSpace(roles[i]))); r.Valid() {
					c.fields.Role = r
					continue
				}
			}
			c.fields.Role = HeuristicRole(c.fields, c.raw)
		}
	}
}

type roleSummary struct {
	Index       int               `json:"index"`
	Name        string            `json:"name,omitempty"`
	JobTitle    string            `json:"job_title,omitempty"`
	Company     string            `json:"company,omitempty"`
	BudgetMin   *float64          `json:"budget_min,omitempty"`
	BudgetMax   *float64          `json:"budget_max,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Source      string            `json:"source,omitempty"`
	Category    string            `json:"category,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	AddressCity string            `json:"address_city,omitempty"`
	RawExtra    map[string]string `json:"raw_extra,omitempty"`
}

func summarize(i int, c roleCandidate) roleSummary {
	notes := c.fields.Notes
	if r := []rune(notes); len(r) > 200 {
		notes = string(r[:200])
	}
	extra := make(map[string]string)
	for k, v := range c.raw {
		if v != "" && len(v) < 100 {
			extra[k] = v
		}
	}
	return roleSummary{
		Index:       i,
		Name:        c.fields.FullName(),
		JobTitle:    c.fields.JobTitle,
		Company:     c.fields.Company,
		BudgetMin:   c.fields.BudgetMin,
		BudgetMax:   c.fields.BudgetMax,
		Notes:       notes,
		Source:      c.fields.Source,
		Category:    string(c.fields.Category),
		Tags:        c.fields.Tags,
		AddressCity: c.fields.AddressCity,
		RawExtra:    extra,
	}
}

var rolesSchema = llm.MustCompileSchema("roles", `{
	"type": "object",
	"required": ["roles"],
	"properties": {
		"roles": {"type": "array", "items": {"type": ["string", "null"]}}
	}
}`)

const roleSystemPrompt = "You are a real estate CRM assistant that analyzes contact data to determine client roles. Return only valid JSON."

const rolePrompt = `You are a real estate CRM assistant. Analyze these contacts and determine the most appropriate role for each.

VALID ROLES (you MUST use exactly one of these):
- "buyer" - Person looking to purchase property (has budget, looking for homes, interested in buying)
- "seller" - Person looking to sell their property (owns property, wants to list, selling home)
- "lender" - Financial professional (mortgage broker, bank officer, loan officer, financial advisor)
- "tenant" - Person looking to rent property (renter, looking for lease, apartment hunter)
- "landlord" - Person who owns rental property (property owner renting out, investor with rentals)
- "other" - None of the above clearly applies (other professionals, unclear intent)

DECISION RULES:
1. If budget_min or budget_max is present, likely "buyer" or "tenant" (use context to distinguish)
2. If category contains "buyer", "seller", "lender" or "tenant", use that role
3. If job_title suggests mortgage or banking, use "lender"
4. If notes mention buying or looking for a home, use "buyer"
5. If notes mention selling or listing their property, use "seller"
6. If notes mention renting, a lease or an apartment, use "tenant"
7. If notes mention rental income, investment property or tenants, use "landlord"
8. When in doubt between buyer and tenant, higher budgets suggest "buyer"
9. If truly unclear, use "other"

CONTACTS TO ANALYZE:
%s

Return a JSON object with a "roles" array containing the role for each contact IN ORDER.
Example: {"roles": ["buyer", "seller", "tenant", "other", "lender"]}

Return ONLY the JSON object, no explanations.`

func (d *RoleDeducer) classify(ctx context.Context, batch []roleCandidate) ([]string, error) {
	summaries := make([]roleSummary, len(batch))
	for i, c := range batch {
		summaries[i] = summarize(i, c)
	}
	body, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, err
	}

	var out struct {
		Roles []string `json:"roles"`
	}
	err = llm.CompleteJSON(ctx, d.llm, llm.Request{
		System:    roleSystemPrompt,
		Prompt:    fmt.Sprintf(rolePrompt, body),
		MaxTokens: 1000,
	}, rolesSchema, &out)
	if err != nil {
		return nil, err
	}
	return out.Roles, nil
}
