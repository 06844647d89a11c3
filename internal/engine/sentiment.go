package engine

import "strings"

// ExitIntent is the walk-away read on a buyer message. A confident hit
// triggers the one-shot "digital flounce" save-the-deal concession.
type ExitIntent struct {
	Leaving    bool    `json:"leaving"`
	Confidence float64 `json:"confidence"`
	Trigger    string  `json:"trigger,omitempty"`
	Angry      bool    `json:"angry,omitempty"`
}

// English + transliterated Hindi exit signals.
var exitKeywords = []string{
	// English
	"too expensive", "too much", "too costly", "can't afford", "forget it",
	"never mind", "no thanks", "not interested", "i'll pass", "bye",
	"leaving", "going", "somewhere else", "another shop", "no deal",
	// Hinglish
	"bohot mehenga", "bahut mehenga", "bahut zyada", "chhodo", "chodo",
	"jane do", "jaane do", "rehne do", "nahi chahiye", "nahi lena",
	"bahut hai", "itna nahi", "afford nahi", "budget nahi",
	"dusri dukaan", "kahi aur", "kahin aur",
}

var angryKeywords = []string{
	"waste of time", "scam", "rip off", "loot", "cheating",
	"loot rahe ho", "pagal bana rahe", "mazaak", "joke",
}

// DetectExitIntent scans a buyer message for walk-away signals.
func DetectExitIntent(message string) ExitIntent {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return ExitIntent{}
	}

	for _, kw := range angryKeywords {
		if strings.Contains(text, kw) {
			return ExitIntent{Leaving: true, Confidence: 0.9, Trigger: kw, Angry: true}
		}
	}

	var matches []string
	for _, kw := range exitKeywords {
		if strings.Contains(text, kw) {
			matches = append(matches, kw)
		}
	}
	if len(matches) > 0 {
		conf := 0.5 + 0.15*float64(len(matches))
		if conf > 1 {
			conf = 1
		}
		return ExitIntent{Leaving: true, Confidence: conf, Trigger: matches[0]}
	}
	return ExitIntent{}
}
