package core

import (
	"fmt"
	"strings"

	"medvise-backend/pkg"
)

// CaseSummary condenses a patient record and its history into the short
// case description fed to the expert prompts.  Duration falls back to the
// value the intake form stored in additionalInfo.  Previous answers are only
// listed when there are any.
func CaseSummary(p pkg.PatientRecord, history []pkg.ChatTurn) string {
	lastUser := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == pkg.RoleUser {
			lastUser = history[i].Content
			break
		}
	}

	duration := p.Duration
	if duration == "" {
		if d, ok := p.AdditionalInfo["duration"].(string); ok {
			duration = d
		}
	}

	lines := []string{
		fmt.Sprintf("Yaş/Cinsiyet: %s/%s", ageText(p.Age), orDash(p.Gender)),
		"Ana şikayet: " + orDash(p.Symptoms),
		"Süre: " + orDash(duration),
		"Ek notlar: " + orDash(p.ExtraNotes),
		"Son kullanıcı mesajı: " + lastUser,
	}
	if len(p.PreviousAnswers) > 0 {
		lines = append(lines, "Önceki yanıtlar: "+strings.Join(p.PreviousAnswers, "; "))
	}
	return strings.Join(lines, "\n")
}
