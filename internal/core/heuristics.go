package core

import (
	"regexp"
	"strings"

	"medvise-backend/pkg"
)

// ExpertSignature is the closing line every expert-mode reply ends with.
// Sessions recorded before turns carried stage metadata are recognised by it.
const ExpertSignature = "Merak ettiğin bir şey var mı, başka nasıl yardımcı olabilirim?"

// CountQARounds counts assistant turns that look like a numbered question
// round: the content has "1." together with a "?", or a line starting with
// "2." or "3.".  Malformed or duplicated numbering still counts.
func CountQARounds(history []pkg.ChatTurn) int {
	rounds := 0
	for _, t := range history {
		if t.Role != pkg.RoleAssistant {
			continue
		}
		c := t.Content
		if (strings.Contains(c, "1.") && strings.Contains(c, "?")) ||
			strings.Contains(c, "\n2.") || strings.Contains(c, "\n3.") {
			rounds++
		}
	}
	return rounds
}

// DetectExpertMode reports whether the history shows the session already
// reached the expert stage.  Turn stage metadata is authoritative; with
// legacyText set, an assistant turn containing ExpertSignature also counts.
func DetectExpertMode(history []pkg.ChatTurn, legacyText bool) bool {
	for _, t := range history {
		if t.Stage == pkg.StageExpertEvaluation {
			return true
		}
		if legacyText && t.Role == pkg.RoleAssistant && strings.Contains(t.Content, ExpertSignature) {
			return true
		}
	}
	return false
}

var numberedLine = regexp.MustCompile(`^\s*\d+[).\-]\s+`)

// ExtractQuestions pulls follow-up questions out of a model reply.  Numbered
// lines ("1. ", "2) ", "3- ") win, with the marker stripped; otherwise any
// line with a question mark up to 180 characters is taken.  Duplicates are
// dropped, first occurrence kept.
func ExtractQuestions(text string) []string {
	var qs []string
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if loc := numberedLine.FindStringIndex(s); loc != nil {
			qs = append(qs, strings.TrimSpace(s[loc[1]:]))
		}
	}
	if len(qs) == 0 {
		for _, line := range lines {
			s := strings.TrimSpace(line)
			if strings.Contains(s, "?") && len([]rune(s)) <= 180 {
				qs = append(qs, s)
			}
		}
	}
	return dedupe(qs)
}

var criticalPhrases = []string{
	"acil", "acil servis", "derhal", "112",
	"göğüs ağrısı", "nefes darlığı", "şiddetli baş ağrısı",
	"bilinç bulanıklığı", "felç", "inme", "kanama",
}

// DetectCritical lists the red-flag phrases found in a model reply.
func DetectCritical(text string) []string {
	lowered := strings.ToLower(text)
	flags := []string{}
	for _, p := range criticalPhrases {
		if strings.Contains(lowered, p) {
			flags = append(flags, "Kritik uyarı ifadesi tespit edildi: '"+p+"'")
		}
	}
	return dedupe(flags)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
