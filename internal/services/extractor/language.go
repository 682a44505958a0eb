package extractor

import "strings"

// languageSample caps how many tokens the heuristic inspects per page
const languageSample = 2000

// stopwords per language, all lowercase. Order matters: on a tie the
// earlier language wins, so English is the deterministic fallback.
var languageStopwords = []struct {
	code  string
	words map[string]bool
}{
	{"en", wordSet("the and of to in is that it for with as on this are be was not by from")},
	{"es", wordSet("el la de que y en los las por con para una del se es un como mas pero sus")},
	{"fr", wordSet("le la les de des et en que pour dans est une sur avec pas qui par plus ce")},
	{"de", wordSet("der die das und ist von mit den nicht auf ein eine zu im des sich dem auch")},
	{"pt", wordSet("o a de que e do da em um para com uma os no se na por mais dos como")},
	{"it", wordSet("il la di che e per un in con del le si da una sono non alla dei nel")},
}

func wordSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

// detectLanguage guesses the dominant language from stopword frequency.
// The certainty is the hit ratio of the winning language; pages with no
// recognizable stopwords report English with zero certainty.
func detectLanguage(text string) (string, float64) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > languageSample {
		tokens = tokens[:languageSample]
	}
	if len(tokens) == 0 {
		return "en", 0
	}

	hits := make([]int, len(languageStopwords))
	for _, token := range tokens {
		token = strings.Trim(token, ".,;:!?\"'()[]")
		for i := range languageStopwords {
			if languageStopwords[i].words[token] {
				hits[i]++
			}
		}
	}

	best := 0
	for i := 1; i < len(hits); i++ {
		if hits[i] > hits[best] {
			best = i
		}
	}
	if hits[best] == 0 {
		return "en", 0
	}
	return languageStopwords[best].code, float64(hits[best]) / float64(len(tokens))
}
