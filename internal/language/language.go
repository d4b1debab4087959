package language

import (
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
	// unspaced scripts are measured in characters, not words.
	unspaced bool
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}, false},
	{"es", "spa", "", "Spanish", []string{"spanish", "castilian"}, false},
	{"fr", "fra", "fre", "French", []string{"french"}, false},
	{"de", "deu", "ger", "German", []string{"german"}, false},
	{"it", "ita", "", "Italian", []string{"italian"}, false},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}, false},
	{"nl", "nld", "dut", "Dutch", []string{"dutch", "flemish"}, false},
	{"ru", "rus", "", "Russian", []string{"russian"}, false},
	{"hi", "hin", "", "Hindi", []string{"hindi"}, false},
	{"ar", "ara", "", "Arabic", []string{"arabic"}, false},
	{"ko", "kor", "", "Korean", []string{"korean"}, false},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}, true},
	{"zh", "zho", "chi", "Chinese", []string{"chinese", "mandarin"}, true},
	{"th", "tha", "", "Thai", []string{"thai"}, true},
	{"pl", "pol", "", "Polish", []string{"polish"}, false},
	{"sv", "swe", "", "Swedish", []string{"swedish"}, false},
	{"tr", "tur", "", "Turkish", []string{"turkish"}, false},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// Normalize reduces any recognized code, tag or word to ISO 639-1. Unknown
// well-formed BCP 47 tags reduce to their base language; anything else
// returns "".
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	tag, err := xlanguage.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No {
		return ""
	}
	if e := lookup(base.String()); e != nil {
		return e.code2
	}
	if iso3 := base.ISO3(); iso3 != "" {
		if e := lookup(iso3); e != nil {
			return e.code2
		}
	}
	return base.String()
}

// Known reports whether the code maps to a language in the table.
func Known(code string) bool {
	return lookup(Normalize(code)) != nil
}

// CharacterBased reports whether speech in the language is measured in
// characters because the script does not separate words with spaces.
func CharacterBased(code string) bool {
	e := lookup(Normalize(code))
	return e != nil && e.unspaced
}

// ToISO3 converts any recognized language code to ISO 639-2 (3-letter).
// Returns "und" for unrecognized input.
func ToISO3(code string) string {
	if e := lookup(Normalize(code)); e != nil {
		return e.code3
	}
	return "und"
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input and a title-cased form of unrecognized
// input.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	if e := lookup(Normalize(trimmed)); e != nil {
		return e.display
	}
	if len(trimmed) <= 3 {
		return strings.ToUpper(trimmed)
	}
	return cases.Title(xlanguage.English).String(strings.ToLower(trimmed))
}

// NormalizeList deduplicates and normalizes a list of language codes,
// dropping entries that cannot be recognized.
func NormalizeList(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		n := Normalize(code)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}
	return normalized
}
