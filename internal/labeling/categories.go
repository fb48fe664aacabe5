package labeling

// Tier groups document categories by how much a deal depends on them.
type Tier string

const (
	TierCritical    Tier = "critical"
	TierRecommended Tier = "recommended"
	TierAdvised     Tier = "advised"
	TierOther       Tier = "other"
)

// CategoryOther is the catch-all for unrecognized documents.
const CategoryOther = "Other"

type category struct {
	name  string
	tier  Tier
	score int
}

// categories is ordered as presented to the model.
var categories = []category{
	{"DNI", TierCritical, 10},
	{"NIE", TierCritical, 10},
	{"Passport", TierCritical, 10},
	{"Power of Attorney", TierCritical, 9},
	{"KYC Form", TierCritical, 9},
	{"Proof of Funds", TierCritical, 9},
	{"Property Title Deed", TierCritical, 10},
	{"Nota Simple", TierCritical, 9},
	{"Energy Certificate (CEE)", TierCritical, 9},
	{"Community Debt Certificate", TierCritical, 9},
	{"Habitability Certificate (Cédula)", TierCritical, 9},
	{"IBI Receipt", TierCritical, 8},
	{"Sales Listing Agreement (Nota de Encargo)", TierCritical, 10},
	{"Seguro Decenal", TierCritical, 8},
	{"Libro del Edificio", TierCritical, 8},

	{"Certificate of No Urban Infraction", TierRecommended, 7},
	{"Earnest Money Contract (Arras)", TierRecommended, 8},
	{"Technical Building Inspection (ITE)", TierRecommended, 7},
	{"Electrical Bulletin (CIE)", TierRecommended, 6},
	{"Plusvalía Municipal", TierRecommended, 7},
	{"Payslips", TierRecommended, 6},
	{"Tax Returns", TierRecommended, 6},
	{"Rent Default Insurance", TierRecommended, 6},

	{"Community Meeting Minutes (Actas)", TierAdvised, 4},
	{"Community Statutes", TierAdvised, 4},
	{"Floor Plans", TierAdvised, 3},
	{"Cadastral Plans", TierAdvised, 3},
	{"Utility Bills", TierAdvised, 3},
	{"Home Insurance", TierAdvised, 4},
	{"Defect Photos", TierAdvised, 2},
	{"Property Photos", TierAdvised, 2},

	{CategoryOther, TierOther, 1},
}

var categoryIndex = func() map[string]category {
	m := make(map[string]category, len(categories))
	for _, c := range categories {
		m[c.name] = c
	}
	return m
}()

// ImportanceScore rates a category from 1 to 10. Unknown categories score 1.
func ImportanceScore(name string) int {
	if c, ok := categoryIndex[name]; ok {
		return c.score
	}
	return 1
}

// TierOf reports the tier of a category. Unknown categories are TierOther.
func TierOf(name string) Tier {
	if c, ok := categoryIndex[name]; ok {
		return c.tier
	}
	return TierOther
}

// Categories lists every category name in presentation order.
func Categories() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = c.name
	}
	return out
}
