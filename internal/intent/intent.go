// Package intent routes incoming chat messages with cheap keyword
// heuristics so the expensive context loads only run when they pay off.
package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/northhybrid/norte/internal/llm"
)

type Intent string

const (
	ProfileLookup    Intent = "profile_lookup"
	PRLookup         Intent = "pr_lookup"
	RunLookup        Intent = "run_lookup"
	LogTraining      Intent = "log_training"
	ProgressOrRecall Intent = "progress_or_recall"
	GeneralChat      Intent = "general_chat"
)

const continuationQuoteMaxChars = 400

// Detect classifies a message. Order matters: the first matching rule
// wins, so explicit lookups beat the broader training heuristics.
func Detect(message string) Intent {
	m := strings.ToLower(message)
	switch {
	case DetectProfileQuery(m):
		return ProfileLookup
	case isPRQuery(m):
		return PRLookup
	case DetectRunQuery(m) && (strings.Contains(m, "última") || strings.Contains(m, "ultima") ||
		strings.Contains(m, "dato") || strings.Contains(m, "ritmo") || strings.Contains(m, "pace")):
		return RunLookup
	case LooksLikeTrainingLog(m):
		return LogTraining
	case NeedsTrainingContext(m) || DetectRecallQuery(m):
		return ProgressOrRecall
	default:
		return GeneralChat
	}
}

func IsGreeting(message string) bool {
	m := strings.TrimSpace(strings.ToLower(message))
	return m == "hola" ||
		strings.HasPrefix(m, "hola ") ||
		strings.Contains(m, "buenas") ||
		strings.Contains(m, "hey") ||
		strings.Contains(m, "qué tal") ||
		strings.Contains(m, "que tal")
}

var shortAffirmations = []string{"si", "sí", "vale", "ok", "claro"}

func IsShortAffirmation(message string) bool {
	m := strings.TrimSpace(strings.ToLower(message))
	for _, word := range shortAffirmations {
		if m == word {
			return true
		}
	}
	return false
}

// ContinuationHint quotes the coach's last turn back into the context
// when the user answers with a bare "sí"/"vale", so the model picks up
// the thread instead of restarting the conversation.
func ContinuationHint(message string, history []llm.Message) string {
	if !IsShortAffirmation(message) {
		return ""
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "assistant" {
			continue
		}
		quoted := clampRunes(history[i].Content, continuationQuoteMaxChars)
		return fmt.Sprintf(
			"CONTINUACION: El usuario ha confirmado con %q. Continúa con el último tema/pregunta del coach: %s\nFIN_CONTINUACION",
			message, quoted,
		)
	}
	return ""
}

func DetectProfileQuery(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "que sabes de mi") ||
		strings.Contains(m, "qué sabes de mí") ||
		strings.Contains(m, "que recuerdas de mi") ||
		strings.Contains(m, "qué recuerdas de mí") ||
		strings.Contains(m, "que tienes guardado") ||
		strings.Contains(m, "qué tienes guardado")
}

func DetectRecallQuery(message string) bool {
	m := strings.ToLower(message)
	for _, phrase := range []string{
		"te puse", "te he puesto", "te pasé", "te pase", "te di", "te dije",
		"te comenté", "te comente", "lo tienes", "lo guardaste", "lo has guardado",
		"tienes eso", "tienes ese dato", "lo recuerdas", "recuerdas eso",
	} {
		if strings.Contains(m, phrase) {
			return true
		}
	}
	return false
}

func DetectRunQuery(message string) bool {
	m := strings.ToLower(message)
	for _, word := range []string{"carrera", "correr", "corrida", "run", "ritmo", "pace"} {
		if strings.Contains(m, word) {
			return true
		}
	}
	return false
}

// PRQuery names a lift family and the SQL LIKE patterns that cover its
// Spanish and English spellings in stored logs.
type PRQuery struct {
	Label    string
	Patterns []string
}

var prTriggerPattern = regexp.MustCompile(`\b(pr|récord|record|marca|máximo|maximo|cu[aá]nto)\b`)

// DetectPRQuery reports the lift the user asks a personal record about.
// Only a fixed set of families is recognized; anything else falls
// through to the general training context.
func DetectPRQuery(message string) (PRQuery, bool) {
	m := strings.TrimSpace(strings.ToLower(message))
	if !prTriggerPattern.MatchString(m) {
		return PRQuery{}, false
	}

	switch {
	case strings.Contains(m, "front squat") || strings.Contains(m, "sentadilla frontal"):
		return PRQuery{
			Label:    "front squat / sentadilla frontal",
			Patterns: []string{"%front squat%", "%sentadilla frontal%"},
		}, true
	case strings.Contains(m, "back squat") || strings.Contains(m, "sentadilla"):
		return PRQuery{
			Label:    "back squat / sentadilla",
			Patterns: []string{"%back squat%", "%sentadilla%"},
		}, true
	case strings.Contains(m, "deadlift") || strings.Contains(m, "peso muerto"):
		return PRQuery{
			Label:    "deadlift / peso muerto",
			Patterns: []string{"%deadlift%", "%peso muerto%"},
		}, true
	case strings.Contains(m, "bench") || strings.Contains(m, "press banca") || strings.Contains(m, "press de banca"):
		return PRQuery{
			Label:    "press banca",
			Patterns: []string{"%press banca%", "%press de banca%", "%bench%"},
		}, true
	default:
		return PRQuery{}, false
	}
}

func isPRQuery(message string) bool {
	_, ok := DetectPRQuery(message)
	return ok
}

var trainingLogPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d+\s*x\s*\d+\b`),
	regexp.MustCompile(`\b\d+:\d{2}\b`),
	regexp.MustCompile(`\b\d+(\.\d+)?\s*km\b`),
	regexp.MustCompile(`\b\d+(\.\d+)?\s*kg\b`),
	regexp.MustCompile(`\bseries?\b`),
	regexp.MustCompile(`\breps?\b`),
	regexp.MustCompile(`\bmetcon\b`),
	regexp.MustCompile(`\brun\b`),
	regexp.MustCompile(`\bcorr(i|í)\b`),
	regexp.MustCompile(`\bremo\b`),
	regexp.MustCompile(`\bwall\s*balls?\b`),
	regexp.MustCompile(`\bsled\b`),
	regexp.MustCompile(`\bsentadilla\b`),
	regexp.MustCompile(`\bpress\b`),
}

// LooksLikeTrainingLog is the cheap syntactic gate before the extractor
// model runs. Typical hits: "3x8", "27:30", "5km", "90kg".
func LooksLikeTrainingLog(message string) bool {
	m := strings.ToLower(message)
	for _, pattern := range trainingLogPatterns {
		if pattern.MatchString(m) {
			return true
		}
	}
	return false
}

var trainingContextKeywords = []string{
	"ayer", "semana", "mes", "progreso", "marca", "mejora", "carrera", "ritmo",
	"corrí", "corriste", "peso", "tiempo", "km", "entrené", "cuanto", "cuánto",
	"recuerdas", "te dije", "habia dicho", "había dicho", "plan", "programa",
	"programación", "programacion",
}

func NeedsTrainingContext(message string) bool {
	m := strings.ToLower(message)
	for _, keyword := range trainingContextKeywords {
		if strings.Contains(m, keyword) {
			return true
		}
	}
	return false
}

var profileSignalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bme llamo\b`),
	regexp.MustCompile(`\bmi nombre\b`),
	regexp.MustCompile(`\btengo \d{1,3}\s*a(n|ñ)os\b`),
	regexp.MustCompile(`\bmido \d`),
	regexp.MustCompile(`\b(peso|peso corporal|peso actual)\b`),
	regexp.MustCompile(`\bmi objetivo\b`),
	regexp.MustCompile(`\bmi meta\b`),
	regexp.MustCompile(`\bquiero (mejorar|bajar|subir|preparar)\b`),
	regexp.MustCompile(`\btengo (una )?lesi(o|ó)n\b`),
	regexp.MustCompile(`\bme duele\b`),
	regexp.MustCompile(`\bme oper(ar|aron)\b`),
	regexp.MustCompile(`\bsolo puedo entrenar\b`),
	regexp.MustCompile(`\bpuedo entrenar\b`),
	regexp.MustCompile(`\bdispongo de\b`),
	regexp.MustCompile(`\bmis horarios\b`),
	regexp.MustCompile(`\bprefiero\b`),
	regexp.MustCompile(`\bno me gusta\b`),
	regexp.MustCompile(`\bme gusta\b`),
}

// ShouldUpdateProfile gates the profile extractor on explicit
// first-person statements, so ambiguous words like "peso" inside a
// lift description do not trigger it.
func ShouldUpdateProfile(message string) bool {
	m := strings.ToLower(message)
	for _, pattern := range profileSignalPatterns {
		if pattern.MatchString(m) {
			return true
		}
	}
	return false
}

var namePattern = regexp.MustCompile(`(?i)(?:me llamo|mi nombre es)\s+([a-záéíóúüñ]+(?:\s+[a-záéíóúüñ]+){0,2})`)

// ExtractName captures "me llamo X" / "mi nombre es X" deterministically
// so the user's name never depends on the extractor model.
func ExtractName(message string) string {
	match := namePattern.FindStringSubmatch(strings.TrimSpace(message))
	if len(match) < 2 {
		return ""
	}
	candidate := titleCaseName(match[1])
	if len([]rune(candidate)) < 2 {
		return ""
	}
	return candidate
}

func titleCaseName(name string) string {
	words := strings.Fields(strings.TrimSpace(name))
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		if len(runes) > 0 {
			runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func clampRunes(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "…"
}
