package search

import (
	"regexp"

	"github.com/covrag/covrag/internal/store"
)

// Declarative expansion tables. Adding a pattern or synonym is a table
// edit, not a code change.

func compileAll(raw []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// sourcePatterns signal which source a query is about. Relevance is
// matches/threshold with threshold = max(1, len(patterns)/3).
var sourcePatterns = map[store.Source][]*regexp.Regexp{
	store.SourcePolicyManual: compileAll([]string{
		`\bpart\s+[a-d]\b`,
		`\bpolicy\s+manual\b`,
		`\bbenefit(?:s)?\s*(?:policy|period)\b`,
		`\bclaim(?:s)?\s*(?:processing|submission|filing)\b`,
		`\benrollment\b`,
		`\beligibility\b`,
		`\bmedicare\b.*\b(?:policy|guideline|manual|chapter|rule)\b`,
		`\bgeneral\s+billing\b`,
		`\bsummary\s+notice\b`,
		`\bappeal(?:s)?\b`,
		`\bredetermination\b`,
	}),
	store.SourceCoverageRecord: compileAll([]string{
		`\blcds?\b`,
		`\bncds?\b`,
		`\bcoverage\s+determination\b`,
		`\bmedical\s+necessity\b`,
		`\bcoverage\s+criteria\b`,
		`\bindication(?:s)?\b`,
		`\blimitation(?:s)?\b`,
		`\bcontractor\b`,
		`\bjurisdiction\b`,
		`\bnovitas\b`,
		`\bfirst\s+coast\b`,
		`\bpalmetto\b`,
		`\bnoridian\b`,
		`\bcovered?\b.{0,30}\bservice`,
	}),
	store.SourceCodeRecord: compileAll([]string{
		`\bhcpcs\b`,
		`\bcpt\b`,
		`\bicd[- ]?10\b`,
		`\bprocedure\s+code\b`,
		`\bdiagnosis\s+code\b`,
		`\bbilling\s+code\b`,
		`\bcode(?:s)?\s+for\b`,
		`\bmodifier\b`,
		`\bdrg\b`,
		`\brevenue\s+code\b`,
		`\b[A-Z]\d{4}\b`,
	}),
}

// fallbackRelevance casts a wide net when a query carries no source
// signal at all.
var fallbackRelevance = map[store.Source]float64{
	store.SourcePolicyManual:   0.4,
	store.SourceCoverageRecord: 0.3,
	store.SourceCodeRecord:     0.3,
}

// sourceVocabulary is appended to the query for each relevant source,
// pulling the variant toward that source's indexing vocabulary.
var sourceVocabulary = map[store.Source]string{
	store.SourcePolicyManual:   "Medicare policy guidelines manual chapter benefit rules",
	store.SourceCoverageRecord: "coverage determination LCD NCD criteria medical necessity indications limitations",
	store.SourceCodeRecord:     "HCPCS CPT ICD-10 procedure diagnosis billing codes",
}

type synonymRule struct {
	pattern   *regexp.Regexp
	expansion string
}

func synonym(p, expansion string) synonymRule {
	return synonymRule{pattern: regexp.MustCompile(`(?i)` + p), expansion: expansion}
}

// synonymRules map clinical terms to related terms that appear in
// other source types.
var synonymRules = []synonymRule{
	synonym(`\bcoverage\b`, "covered services benefits policy"),
	synonym(`\bbilling\b`, "claims reimbursement payment"),
	synonym(`\brehabilitation\b`, "rehab therapy treatment program"),
	synonym(`\bwound\s*care\b`, "wound management debridement negative pressure therapy"),
	synonym(`\bimaging\b`, "diagnostic imaging MRI CT scan X-ray ultrasound"),
	synonym(`\bdurable\s+medical\s+equipment\b`, "DME prosthetic orthotic supplies"),
	synonym(`\bhome\s+health\b`, "home health agency HHA skilled nursing"),
	synonym(`\bhospice\b`, "hospice palliative end-of-life terminal care"),
	synonym(`\bambulance\b`, "ambulance transport emergency non-emergency"),
	synonym(`\binfusion\b`, "infusion injection drug administration"),
	synonym(`\bphysical\s+therapy\b`, "physical therapy PT outpatient rehabilitation"),
	synonym(`\boccupational\s+therapy\b`, "occupational therapy OT rehabilitation"),
	synonym(`\bspeech\s+therapy\b`, "speech-language pathology SLP therapy"),
	synonym(`\bmental\s+health\b`, "behavioral health psychiatric psychological services"),
	synonym(`\bdialysis\b`, "dialysis ESRD end-stage renal disease"),
	synonym(`\bchemotherapy\b`, "chemotherapy oncology cancer treatment"),
}

// coverageQueryPatterns detect coverage-determination phrasing:
// contractor names, jurisdiction codes, and coverage+therapy pairs.
// These queries get topic expansion, concept stripping, and an extra
// coverage-record-filtered retrieval pass.
var coverageQueryPatterns = compileAll([]string{
	`\blcds?\b`,
	`\blocal coverage determination\b`,
	`\bcoverage determination\b`,
	`\bncd\b`,
	`\bnational coverage determination\b`,
	`\bcontractor\b`,
	`\bjurisdiction\b`,
	`\bnovitas\b`,
	`\bfirst coast\b`,
	`\bcgs\b`,
	`\bngs\b`,
	`\bwps\b`,
	`\bpalmetto\b`,
	`\bnoridian\b`,
	`\b[jJ][a-l]\b`,
	`\bcover(?:ed)?\b.{0,40}\b(?:wound|hyperbaric|oxygen therapy|infusion|imaging|MRI|CT scan|ultrasound|physical therapy|cardiac rehab|chiropractic|acupuncture)\b`,
	`\bcoverage\b.{0,30}\b(?:wound|hyperbaric|oxygen|infusion|imaging|MRI|CT|physical therapy|cardiac|chiropractic|acupuncture|prosthetic|orthotic)\b`,
	`\b(?:wound|hyperbaric|oxygen therapy|infusion|imaging|MRI|CT scan|physical therapy|cardiac rehab)\b.{0,40}\bcover(?:ed)?\b`,
})

type topicExpansionRule struct {
	pattern   *regexp.Regexp
	expansion string
}

// coverageTopicExpansions reformulate coverage queries toward the
// clinical topic's canonical phrasing.
var coverageTopicExpansions = []topicExpansionRule{
	{regexp.MustCompile(`(?i)\bcardiac\s*rehab`), "cardiac rehabilitation program coverage criteria"},
	{regexp.MustCompile(`(?i)\bhyperbaric\s*oxygen`), "hyperbaric oxygen therapy wound healing coverage indications"},
	{regexp.MustCompile(`(?i)\bphysical therapy`), "outpatient physical therapy rehabilitation coverage"},
	{regexp.MustCompile(`(?i)\b(?:wound\s*care|wound\s*vac)`), "wound care negative pressure therapy coverage"},
	{regexp.MustCompile(`(?i)\b(?:imaging|MRI|CT\s*scan)`), "advanced diagnostic imaging coverage medical necessity"},
}

// genericCoverageExpansion is used when a coverage query matches no
// specific topic.
const genericCoverageExpansion = "Local Coverage Determination LCD policy coverage criteria"

// stripCoverageJargon removes determination jargon, contractor names,
// and jurisdiction codes so the remainder is the medical concept.
var stripCoverageJargon = regexp.MustCompile(`(?i)\b(?:lcd|lcds|ncd|mcd|local coverage determination|national coverage determination|coverage determination|novitas|first coast|cgs|ngs|wps|palmetto|noridian|contractor|jurisdiction|[jJ][a-lA-L])\b`)

// stripFiller removes question filler words.
var stripFiller = regexp.MustCompile(`(?i)\b(?:does|have|has|an|the|for|is|are|what|which|apply to)\b`)

var (
	stripParens     = regexp.MustCompile(`[()]+`)
	collapseSpaces  = regexp.MustCompile(`\s{2,}`)
	trimPunctuation = " ?.,;:"
)
