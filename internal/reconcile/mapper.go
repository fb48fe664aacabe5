package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
)

// Mapping maps an input header to the canonical field it feeds.
type Mapping map[string]model.Field

// Fields returns the set of mapped fields.
func (m Mapping) Fields() map[model.Field]bool {
	out := make(map[model.Field]bool, len(m))
	for _, f := range m {
		out[f] = true
	}
	return out
}

// Has reports whether some header maps to f.
func (m Mapping) Has(f model.Field) bool {
	for _, v := range m {
		if v == f {
			return true
		}
	}
	return false
}

// FieldKeywords lists the header synonyms of one field.
type FieldKeywords struct {
	Field    model.Field `yaml:"field"`
	Keywords []string    `yaml:"keywords"`
}

// KeywordTable is consulted in order; earlier fields win ties.
type KeywordTable []FieldKeywords

// DefaultKeywords covers English and Spanish headers.
var DefaultKeywords = KeywordTable{
	{model.FieldFirstName, []string{"first name", "nombre", "first", "given name", "nombre de pila"}},
	{model.FieldLastName, []string{"last name", "apellido", "apellidos", "surname", "family name", "last"}},
	{model.FieldEmail, []string{"email", "correo", "e-mail", "correo electronico", "mail"}},
	{model.FieldPhone, []string{"phone", "telefono", "tel", "mobile", "movil", "celular", "telephone"}},
	{model.FieldCompany, []string{"company", "empresa", "organization", "organizacion", "compania", "business"}},
	{model.FieldJobTitle, []string{"job title", "titulo", "position", "cargo", "puesto", "profession"}},
	{model.FieldAddressStreet, []string{"street", "calle", "direccion", "address", "domicilio"}},
	{model.FieldAddressCity, []string{"city", "ciudad", "localidad", "town"}},
	{model.FieldAddressState, []string{"state", "provincia", "estado", "region", "comunidad"}},
	{model.FieldAddressZip, []string{"zip", "codigo postal", "postal code", "cp", "zipcode", "postal"}},
	{model.FieldAddressCountry, []string{"country", "pais", "nation"}},
	{model.FieldSource, []string{"source", "fuente", "origen", "how did you hear", "referral"}},
	{model.FieldNotes, []string{"notes", "notas", "comments", "comentarios", "observations", "observaciones"}},
	{model.FieldBudgetMin, []string{"budget min", "presupuesto minimo", "min budget", "minimum budget"}},
	{model.FieldBudgetMax, []string{"budget max", "presupuesto maximo", "max budget", "maximum budget"}},
	{model.FieldDateOfBirth, []string{"date of birth", "fecha de nacimiento", "birthday", "dob", "birth date", "nacimiento"}},
	{model.FieldPlaceOfBirth, []string{"place of birth", "lugar de nacimiento", "birthplace"}},
	{model.FieldTags, []string{"tags", "etiquetas", "labels", "categories"}},
	{model.FieldRole, []string{"role", "rol", "client type", "tipo de cliente", "contact type", "tipo de contacto", "relationship", "relacion"}},
	{model.FieldCategory, []string{"category", "categoria", "client category", "categoria de cliente", "stage", "etapa"}},
}

// LoadKeywords reads a keyword table from YAML. An empty path returns the
// default table.
func LoadKeywords(path string) (KeywordTable, error) {
	if path == "" {
		return DefaultKeywords, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: read keywords %s", path)
	}
	var table KeywordTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrapf(err, "reconcile: parse keywords %s", path)
	}
	for _, fk := range table {
		if !fk.Field.IsCanonical() {
			return nil, eris.Errorf("reconcile: keywords %s: unknown field %q", path, fk.Field)
		}
	}
	return table, nil
}

const mappingSystemPrompt = "You are a data mapping assistant. Return only valid JSON."

// ColumnMapper maps input headers to canonical contact fields.
type ColumnMapper struct {
	keywords KeywordTable
	llm      llm.Completer
}

// NewColumnMapper creates a mapper. completer may be nil, in which case only
// the keyword table is used.
func NewColumnMapper(keywords KeywordTable, completer llm.Completer) *ColumnMapper {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &ColumnMapper{keywords: keywords, llm: completer}
}

// Map runs the keyword pass and then asks the classifier about the headers
// it left unmapped. Classifier failures are logged and ignored.
func (m *ColumnMapper) Map(ctx context.Context, headers []string, samples []map[string]string) Mapping {
	mapping := m.Heuristic(headers)

	var unmapped []string
	for _, h := range headers {
		if _, ok := mapping[h]; !ok && strings.TrimSpace(h) != "" {
			unmapped = append(unmapped, h)
		}
	}
	if len(unmapped) == 0 || m.llm == nil {
		return mapping
	}

	suggested, err := m.classify(ctx, headers, samples, mapping)
	if err != nil {
		zap.L().Warn("reconcile: column classification failed, using keyword mapping",
			zap.Strings("unmapped", unmapped),
			zap.Error(err),
		)
		return mapping
	}
	m.merge(mapping, headers, suggested)
	return mapping
}

// Heuristic maps each header to the first field with a keyword contained in
// the header (or containing it). Each field is assigned at most once.
func (m *ColumnMapper) Heuristic(headers []string) Mapping {
	mapping := make(Mapping)
	assigned := make(map[model.Field]bool)
	for _, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))
		if h == "" {
			continue
		}
	fields:
		for _, fk := range m.keywords {
			if assigned[fk.Field] {
				continue
			}
			for _, kw := range fk.Keywords {
				if strings.Contains(h, kw) || strings.Contains(kw, h) {
					mapping[header] = fk.Field
					assigned[fk.Field] = true
					break fields
				}
			}
		}
	}
	return mapping
}

func (m *ColumnMapper) classify(ctx context.Context, headers []string, samples []map[string]string, mapping Mapping) (map[string]string, error) {
	existing, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: encode mapping")
	}
	headersJSON, _ := json.Marshal(headers)

	assigned := mapping.Fields()
	var available []string
	for _, fk := range m.keywords {
		if !assigned[fk.Field] {
			available = append(available, string(fk.Field))
		}
	}
	availableJSON, _ := json.Marshal(available)

	var sample strings.Builder
	for i, row := range samples {
		if i == 3 {
			break
		}
		parts := make([]string, 0, len(headers))
		for _, h := range headers {
			parts = append(parts, fmt.Sprintf("%s: %s", h, row[h]))
		}
		sample.WriteString(strings.Join(parts, ", "))
		sample.WriteByte('\n')
	}

	prompt := fmt.Sprintf(`Analyze these CSV columns and map them to contact fields.

CSV Headers: %s

Sample data:
%s
Already mapped:
%s

Available fields to map: %s

Return ONLY a JSON object mapping unmapped CSV column names to contact field names.
Only map columns you are confident about. Skip columns that don't match any field.
Example: {"Telefono Movil": "phone", "Direccion": "address_street"}`, headersJSON, sample.String(), existing, availableJSON)

	var out map[string]string
	err = llm.CompleteJSON(ctx, m.llm, llm.Request{
		System:    mappingSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 500,
	}, mappingSchema, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

var mappingSchema = llm.MustCompileSchema("column_mapping", `{
	"type": "object",
	"additionalProperties": {"type": ["string", "null"]}
}`)

// merge accepts suggestions only for known, still-unmapped headers and for
// canonical fields nobody has taken yet.
func (m *ColumnMapper) merge(mapping Mapping, headers []string, suggested map[string]string) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	assigned := mapping.Fields()
	for _, h := range headers {
		raw, ok := suggested[h]
		if !ok || !known[h] || strings.TrimSpace(h) == "" {
			continue
		}
		if _, taken := mapping[h]; taken {
			continue
		}
		f := model.Field(strings.ToLower(strings.TrimSpace(raw)))
		if !f.IsCanonical() || assigned[f] {
			continue
		}
		mapping[h] = f
		assigned[f] = true
	}
}
