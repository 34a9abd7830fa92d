package engine

import "strings"

// Exit signals, English plus transliterated Hindi. Matching is lowercase
// substring, so multi-word phrases survive surrounding text.
var exitKeywords = []string{
	// English
	"too expensive", "too much", "too costly", "can't afford", "forget it",
	"never mind", "no thanks", "not interested", "i'll pass", "bye",
	"leaving", "going", "somewhere else", "another shop", "no deal",
	// Hindi / Hinglish (transliterated)
	"bohot mehenga", "bahut mehenga", "bahut zyada", "chhodo", "chodo",
	"jane do", "jaane do", "rehne do", "nahi chahiye", "nahi lena",
	"bahut hai", "itna nahi", "afford nahi", "budget nahi",
	"dusri dukaan", "kahi aur", "kahin aur",
}

var angryKeywords = []string{
	"waste of time", "scam", "rip off", "loot", "cheating",
	"loot rahe ho", "pagal bana rahe", "mazaak", "joke",
}

// ExitIntent is the walk-away signal extracted from a buyer message.
type ExitIntent struct {
	IsLeaving  bool    `json:"is_leaving"`
	Confidence float64 `json:"confidence"` // 0.0 - 1.0
	Trigger    string  `json:"trigger"`    // which phrase matched
	IsAngry    bool    `json:"is_angry"`
}

// DetectExitIntent scans a buyer message for leave/anger signals. Angry
// phrases win outright at 0.9 confidence; plain exit phrases stack, each
// extra match adding 0.15 on top of a 0.5 base. Call it on the sanitised
// message so injected control bytes cannot split a phrase.
func DetectExitIntent(message string) ExitIntent {
	text := strings.ToLower(strings.TrimSpace(message))

	for _, kw := range angryKeywords {
		if strings.Contains(text, kw) {
			return ExitIntent{
				IsLeaving:  true,
				Confidence: 0.9,
				Trigger:    kw,
				IsAngry:    true,
			}
		}
	}

	matches := 0
	first := ""
	for _, kw := range exitKeywords {
		if strings.Contains(text, kw) {
			if matches == 0 {
				first = kw
			}
			matches++
		}
	}
	if matches > 0 {
		confidence := 0.5 + 0.15*float64(matches)
		if confidence > 1.0 {
			confidence = 1.0
		}
		return ExitIntent{
			IsLeaving:  true,
			Confidence: confidence,
			Trigger:    first,
		}
	}

	return ExitIntent{}
}
