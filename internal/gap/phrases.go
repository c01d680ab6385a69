package gap

import "regexp"

// gapIndicatorPhrases are matched as lowercase substrings of the answer.
var gapIndicatorPhrases = []string{
	"not disclosed in available sources",
	"not found in available sources",
	"not present in available sources",
	"no information available",
	"not mentioned in the sources",
	"sources do not contain",
	"unable to find",
	"no data available",
	"information not available",
	"could not be determined",
	"not specified in",
	"no evidence of",
	"not identifiable in available sources",
	"not identifiable",
	"cannot reliably identify",
	"cannot be identified",
	"unable to identify",
	"no explicit mention",
	"no explicit",
	// answer models often insert "the"
	"not disclosed in the available sources",
	"not found in the available sources",
	"not present in the available sources",
	"not mentioned in available sources",
	"not available in the sources",
	"not in the provided sources",
}

var gapPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bcannot\s+be\s+\w+\s*(analyzed|determined|verified|confirmed|identified)`),
	regexp.MustCompile(`\bcould\s+not\s+(find|locate|identify|determine|verify)\b`),
	regexp.MustCompile(`\bunable\s+to\s+(find|locate|identify|determine|verify)\b`),
	regexp.MustCompile(`\bno\s+(specific|detailed|explicit|clear)\s+(information|data|evidence|mention)`),
	regexp.MustCompile(`\bnot\s+(explicitly\s+)?(stated|mentioned|specified|disclosed|provided)\s+in`),
	regexp.MustCompile(`\b(lacks|missing)\s+(information|data|details)\s+(about|on|regarding)`),
}

// explicitResearchTriggers mark a question as a direct request for more research.
var explicitResearchTriggers = []string{
	"look this up",
	"search for",
	"dig deeper",
	"find more",
	"can you research",
	"look up",
	"search the web",
	"find information",
	"get more details",
	"investigate",
	"do additional research",
	"more research",
	"structured sources",
	"from pdl",
	"leadership roster",
	"consolidated roster",
	"compile a roster",
	"compile a list",
	"list all",
	"can you search",
	"can you find",
	"can you look",
	"please search",
	"please find",
	"please look up",
	"could you search",
	"could you find",
}

// registryImplyingPatterns identify questions whose answer lives in
// structured registries rather than on the open web.
var registryImplyingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bpatent\s+(database|registry|search|lookup)`),
	regexp.MustCompile(`\bconference\s+(program|schedule|session)`),
	regexp.MustCompile(`\b(annual\s+report|annual\s+account|investor\s+report)`),
	regexp.MustCompile(`\b(\d+\s+most\s+recent|list\s+all|compile\s+a)`),
	regexp.MustCompile(`\bstructured\s+sources`),
	regexp.MustCompile(`\bfrom\s+pdl\b`),
	regexp.MustCompile(`\bpatent\s+databases?\b`),
	regexp.MustCompile(`\b(aps|ieee|acm)\s+(meeting|conference|program)`),
}

type intentKeywords struct {
	intent   Intent
	keywords []string
}

// intentTable is ordered. Ties go to the earlier entry, which is why
// research papers precede patents and programs precede customers.
var intentTable = []intentKeywords{
	{IntentFundingInvestors, []string{
		"investor", "investors", "funding", "raised", "round", "series",
		"seed", "venture", "capital", "vc", "angel", "lead investor",
		"participated", "backed by", "who invested", "funding round",
	}},
	{IntentRevenueARR, []string{
		"revenue", "arr", "mrr", "sales", "income", "earnings",
		"profitable", "profitability", "financial", "growth rate",
	}},
	{IntentResearchPapers, []string{
		"peer-reviewed", "peer reviewed", "paper", "papers", "publication",
		"publications", "doi", "journal", "journals", "abstract",
		"citation", "citations", "preprint", "preprints", "arxiv",
		"academic", "scholarly", "research paper", "scientific paper",
		"nature paper", "science paper", "published in",
	}},
	{IntentPatents, []string{
		"patent", "patents", "ip", "intellectual property", "invention",
		"filing", "uspto", "epo", "patent number", "patent portfolio",
	}},
	{IntentLitigation, []string{
		"lawsuit", "litigation", "legal", "court", "sue", "sued",
		"settlement", "dispute", "injunction", "infringement",
	}},
	{IntentFounderBackground, []string{
		"founder", "co-founder", "background", "previous", "prior",
		"experience", "education", "degree", "university", "career",
		"work history", "biography", "bio",
	}},
	{IntentCompetitors, []string{
		"competitor", "competitors", "competing", "alternative",
		"rival", "market share", "competitive", "vs", "versus",
	}},
	{IntentTechnology, []string{
		"technology", "tech stack", "architecture", "platform",
		"how it works", "technical", "infrastructure", "api",
	}},
	{IntentRegulatory, []string{
		"regulatory", "regulation", "compliance", "fda", "sec",
		"approval", "license", "certification", "audit",
	}},
	{IntentAcquisitions, []string{
		"acquisition", "acquired", "merger", "m&a", "bought",
		"purchase", "takeover", "exit", "ipo",
	}},
	{IntentProgramsContracts, []string{
		"program", "programs", "project", "projects", "initiative",
		"consortium", "consortiums", "grant", "grants", "award", "awards",
		"doe", "darpa", "nsf", "nih", "arpa", "government contract",
		"government funding", "federal", "defence", "defense",
		"trailblazer", "qbi", "benchmarking initiative",
	}},
	{IntentCustomers, []string{
		"customer", "customers", "client", "clients", "commercial",
		"end user", "case study", "success story", "reference customer",
		"logo", "deployment", "rollout", "production", "contract",
		"agreement", "purchase order", "procurement", "partner",
		"partnership", "collaboration", "pilot", "proof of concept", "poc",
	}},
}

var intentTopics = map[Intent]string{
	IntentFundingInvestors:  "Investor and funding details",
	IntentRevenueARR:        "Revenue and financial metrics",
	IntentResearchPapers:    "Academic papers and publications",
	IntentPatents:           "Patent and intellectual property information",
	IntentLitigation:        "Legal and litigation information",
	IntentFounderBackground: "Founder background and career history",
	IntentCompetitors:       "Competitor information",
	IntentTechnology:        "Technical architecture details",
	IntentRegulatory:        "Regulatory and compliance information",
	IntentAcquisitions:      "M&A and acquisition information",
	IntentProgramsContracts: "Government programs, grants, and contracts",
	IntentCustomers:         "Commercial customers, deployments, and partnerships",
}
