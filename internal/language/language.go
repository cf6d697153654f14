package language

import "strings"

type entry struct {
	code2     string   // ISO 639-1 (2-letter)
	code3     string   // ISO 639-2 primary (3-letter)
	alt3      string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	tesseract string   // traineddata name
	display   string   // Human-readable name
	words     []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "eng", "English", []string{"english"}},
	{"de", "deu", "ger", "deu", "German", []string{"german", "deutsch"}},
	{"fr", "fra", "fre", "fra", "French", []string{"french"}},
	{"es", "spa", "", "spa", "Spanish", []string{"spanish"}},
	{"it", "ita", "", "ita", "Italian", []string{"italian"}},
	{"pt", "por", "", "por", "Portuguese", []string{"portuguese"}},
	{"nl", "nld", "dut", "nld", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "pol", "Polish", []string{"polish"}},
	{"sv", "swe", "", "swe", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "dan", "Danish", []string{"danish"}},
	{"no", "nor", "", "nor", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "fin", "Finnish", []string{"finnish"}},
	{"cs", "ces", "cze", "ces", "Czech", []string{"czech"}},
	{"ru", "rus", "", "rus", "Russian", []string{"russian"}},
	{"ja", "jpn", "", "jpn", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "kor", "Korean", []string{"korean"}},
	{"zh", "zho", "chi", "chi_sim", "Chinese", []string{"chinese"}},
	{"ar", "ara", "", "ara", "Arabic", []string{"arabic"}},
	{"hi", "hin", "", "hin", "Hindi", []string{"hindi"}},
}

// Index maps built at init time.
var (
	byCode      map[string]*entry
	byTesseract map[string]*entry
)

func init() {
	byCode = make(map[string]*entry, len(languages)*4)
	byTesseract = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode[e.code2] = e
		byCode[e.code3] = e
		if e.alt3 != "" {
			byCode[e.alt3] = e
		}
		for _, w := range e.words {
			byCode[w] = e
		}
		byTesseract[e.tesseract] = e
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byTesseract[code]; ok {
		return e
	}
	return byCode[code]
}

// ToTesseract converts a language code or English name to its traineddata
// name. Unrecognized input is returned lowercased so custom models still work.
func ToTesseract(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if e := lookup(code); e != nil {
		return e.tesseract
	}
	return code
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or the input unchanged otherwise.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.TrimSpace(code)
}

// Split breaks a selection such as "de, en" or "deu+eng" into entries.
func Split(selection string) []string {
	return strings.FieldsFunc(selection, func(r rune) bool {
		return r == '+' || r == ',' || r == ';' || r == ' ' || r == '\t'
	})
}

// TesseractSelection normalizes a language selection into tesseract's
// "deu+eng" form, preserving order and dropping duplicates.
func TesseractSelection(selection string) string {
	parts := Split(selection)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		code := ToTesseract(part)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return strings.Join(out, "+")
}

// DisplayList renders a selection as "German, English".
func DisplayList(selection string) string {
	parts := Split(selection)
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		names = append(names, DisplayName(part))
	}
	return strings.Join(names, ", ")
}
