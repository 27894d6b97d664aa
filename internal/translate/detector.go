// internal/translate/detector.go
package translate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// Gates below are deliberately conservative: a wrong guess poisons
// the ticket's stored language (sticky once set), while "no guess"
// only postpones detection to a later message.
const (
	minCleanedChars  = 8
	minCleanedTokens = 2

	shortTextThreshold   = 80
	shortTextConfidence  = 0.80
	normalTextConfidence = 0.60
)

var (
	fencedCodeRe   = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe   = regexp.MustCompile("`[^`\n]*`")
	urlRe          = regexp.MustCompile(`https?://\S+`)
	discordTokenRe = regexp.MustCompile(`<a?:[A-Za-z0-9_]+:\d+>|<[@#][!&]?\d+>`)
	junkRe         = regexp.MustCompile(`[^\p{L}\p{N}'\-\s]`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// Detector guesses the language of chat messages with a confidence
// gate. Safe for concurrent use.
type Detector struct {
	model lingua.LanguageDetector
}

func NewDetector() *Detector {
	return &Detector{
		model: lingua.NewLanguageDetectorBuilder().
			FromAllSpokenLanguages().
			Build(),
	}
}

// CleanForDetection strips markup, links and Discord entity tokens,
// leaving only letters, digits, apostrophes, hyphens and single
// spaces.
func CleanForDetection(text string) string {
	text = fencedCodeRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, " ")
	text = urlRe.ReplaceAllString(text, " ")
	text = discordTokenRe.ReplaceAllString(text, " ")
	text = junkRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Detect returns an ISO 639-1 code and true when the text carries
// enough signal, or ("", false) otherwise.
func (d *Detector) Detect(text string) (string, bool) {
	cleaned := CleanForDetection(text)

	length := utf8.RuneCountInString(cleaned)
	if length < minCleanedChars || len(strings.Fields(cleaned)) < minCleanedTokens {
		return "", false
	}

	candidates := d.model.ComputeLanguageConfidenceValues(cleaned)
	if len(candidates) == 0 {
		return "", false
	}

	top := candidates[0]
	floor := normalTextConfidence
	if length < shortTextThreshold {
		floor = shortTextConfidence
	}
	if top.Value() < floor {
		return "", false
	}

	code := strings.ToLower(top.Language().IsoCode639_1().String())
	if len(code) != 2 {
		return "", false
	}
	return code, true
}
