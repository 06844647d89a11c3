package dialogue

import (
	"fmt"

	"github.com/molbhav/molbhav/internal/nego"
)

// Deterministic per-language fallback lines. Used when the LLM is
// unavailable, unparseable, or keeps contradicting the engine's price.
// %d is the counter price in rupees.
var templates = map[string]map[string]string{
	"en": {
		nego.TacticOpeningAnchor: "Welcome! For you, this one is ₹%d. Fresh stock, best quality.",
		nego.TacticAccept:        "Done! ₹%d it is. You drive a hard bargain, my friend.",
		nego.TacticConcession:    "Okay okay, for you — ₹%d. That is my honest price.",
		nego.TacticAnchorDefense: "At that price I make a loss. ₹%d is already fair.",
		nego.TacticWalkAwaySave:  "Wait, wait! Don't go. Final offer, just for you: ₹%d.",
		nego.TacticQuantityPivot: "On one piece I can't move, but take two and I'll do ₹%d each.",
		nego.TacticBotBlock:      "Something's off with these offers. Let's pause here.",
		nego.TacticDeadline:      "We've gone back and forth too long. ₹%d was my last word.",
		nego.TacticTimeout:       "You took too long, friend. Come back and we'll start fresh.",
	},
	"hi": {
		nego.TacticOpeningAnchor: "Aaiye! Aapke liye ye ₹%d ka hai. Ekdum fresh maal.",
		nego.TacticAccept:        "Pakka! ₹%d final. Aap toh mol-bhav ke ustad nikle.",
		nego.TacticConcession:    "Achha achha, aapke liye ₹%d. Isse kam nahi hoga, bhaiya.",
		nego.TacticAnchorDefense: "Itne mein toh ghaata hai. ₹%d bilkul sahi daam hai.",
		nego.TacticWalkAwaySave:  "Arre ruko ruko! Jaao mat. Sirf aapke liye — ₹%d.",
		nego.TacticQuantityPivot: "Ek pe nahi ho payega, do lijiye toh ₹%d per piece.",
		nego.TacticBotBlock:      "Kuch gadbad lag rahi hai. Abhi yahin rukte hain.",
		nego.TacticDeadline:      "Bahut ho gaya bhaiya. ₹%d aakhri baat thi.",
		nego.TacticTimeout:       "Der kar di aapne. Wapas aaiye, phir se baat karenge.",
	},
	"ta": {
		nego.TacticOpeningAnchor: "Vaanga! Ungalukku idhu ₹%d. Nalla fresh stock.",
		nego.TacticAccept:        "Sari! ₹%d final. Nalla bargain pannitinga.",
		nego.TacticConcession:    "Sari sari, ungalukku ₹%d. Idhu dhaan nyaayamana vilai.",
		nego.TacticAnchorDefense: "Andha vilaikku nashtam. ₹%d correct vilai.",
		nego.TacticWalkAwaySave:  "Konjam irunga! Poga vendaam. Ungalukku mattum ₹%d.",
		nego.TacticQuantityPivot: "Onnukku mudiyaadhu, rendu vaanginga — ₹%d per piece.",
		nego.TacticBotBlock:      "Edho thappu theriyudhu. Ippo niruthalaam.",
		nego.TacticDeadline:      "Romba neram aachu. ₹%d dhaan kadaisi vaarthai.",
		nego.TacticTimeout:       "Neram aagiduchu. Thirumba vaanga, pudhusa pesalaam.",
	},
	"te": {
		nego.TacticOpeningAnchor: "Randi! Meeku idi ₹%d. Fresh stock, manchi quality.",
		nego.TacticAccept:        "Sare! ₹%d final. Baaga bargain chesaru.",
		nego.TacticConcession:    "Sare sare, meeku ₹%d. Idi naa nyaayamaina dhara.",
		nego.TacticAnchorDefense: "Aa dharaku nashtam vastundi. ₹%d correct dhara.",
		nego.TacticWalkAwaySave:  "Aagandi! Vellakandi. Mee kosam matrame — ₹%d.",
		nego.TacticQuantityPivot: "Okka daaniki kudaradhu, rendu teesukondi — ₹%d chop.",
		nego.TacticBotBlock:      "Edo thedaga undi. Ikkada aapudaam.",
		nego.TacticDeadline:      "Chaala sepu ayyindi. ₹%d naa chivari maata.",
		nego.TacticTimeout:       "Time ayipoyindi. Malli randi, kottaga matladudaam.",
	},
	"mr": {
		nego.TacticOpeningAnchor: "Ya! Tumchyasathi he ₹%d la. Agdi fresh maal.",
		nego.TacticAccept:        "Zhala! ₹%d final. Tumhi bhav karnyat pakke aahat.",
		nego.TacticConcession:    "Bara bara, tumchyasathi ₹%d. Yapeksha kami nahi honar.",
		nego.TacticAnchorDefense: "Evdhyat tota hoto. ₹%d agdi yogya bhav aahe.",
		nego.TacticWalkAwaySave:  "Thamba thamba! Jau naka. Fakt tumchyasathi — ₹%d.",
		nego.TacticQuantityPivot: "Ekavar nahi jamnar, don ghya tar ₹%d pratyeki.",
		nego.TacticBotBlock:      "Kahitari gadbad vatate. Ithech thambuya.",
		nego.TacticDeadline:      "Khup zhala. ₹%d ha maza shevatcha shabda hota.",
		nego.TacticTimeout:       "Ushir zhala. Parat ya, navyane bolu.",
	},
}

// Template renders the deterministic line for a tactic in the given
// language, falling back to English and then to a generic line.
func Template(language, tactic string, price int64) string {
	lang, ok := templates[language]
	if !ok {
		lang = templates[nego.DefaultLanguage]
	}
	line, ok := lang[tactic]
	if !ok {
		line = lang[nego.TacticConcession]
	}
	if !hasPriceVerb(line) {
		return line
	}
	return fmt.Sprintf(line, price)
}

func hasPriceVerb(line string) bool {
	for i := 0; i+1 < len(line); i++ {
		if line[i] == '%' && line[i+1] == 'd' {
			return true
		}
	}
	return false
}
