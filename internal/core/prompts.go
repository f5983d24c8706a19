package core

// prompts.go holds the Turkish prompt copy used by the intake flow.  Each
// builder returns a system and a user prompt; the copy can be tuned here
// without touching the orchestration code.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"medvise-backend/internal/patient"
	"medvise-backend/pkg"
)

// Prompt is one system/user pair sent to the completion function.
type Prompt struct {
	System string
	User   string
}

// recentTurns is how many turns of history the chat question prompt embeds.
const recentTurns = 8

const systemGeneral = "Sen bir sağlık danışmanı yapay zekâsın. Tanı koymazsın; bilgilendirir ve " +
	"yönlendirirsin. Acil durumları tanır ve gerektiğinde 112'ye yönlendirirsin. " +
	"Dilin net, kısa ve sakin olsun. Aynı bilgiyi tekrar sorma; mevcut veriyi kullan. " +
	"Başlık/markdown süsleme yapma; gereksiz girizgâh yazma. " +
	"'Acil değil/normal' gibi kesin güvence cümleleri kurma; yalnızca gerekli olduğunda acil uyarısı yap. " +
	"Mesajlarını 'geçmiş olsun' gibi kapanışlarla bitirme."

const expertSystem = systemGeneral +
	" Uzmansın; klinik ve aksiyon odaklı konuş. " +
	"Konuşma dilini hastaya hitaben konuşuyormuş gibi ayarla. " +
	"Çıktın başlıksız ve madde işaretsiz, kısa bir paragraf olsun. " +
	"Artık anamnez sorusu sorma, yeni soru üretme. " +
	"Önceki soruları veya vaka özetini tekrar etme. " +
	"Kullanıcı bundan sonra ne sorarsa sadece doğrudan yanıt ver. " +
	"Konuşma bağlamını koru. " +
	"Son cümlende nazikçe alt satıra geçip: '" + ExpertSignature + "' diye sor."

const expertReplySystem = "Uzman klinik danışman modundasın. Artık anamnez sorusu sorma ve yeni soru üretme. " +
	"Kullanıcının sorusuna bağlamı kullanarak DOĞRUDAN ve KISA cevap ver. " +
	"Önceki açıklamaları tekrar etme; gereksiz girizgâh yazma; maddeleme yapma. " +
	"Net ve uygulanabilir konuş."

const questionModeSystem = systemGeneral +
	" SORU MODU: Açıklama/yorum/öneri verme; tanısal çıkarım yapma. " +
	"Yalnızca eksik noktaları tamamlamak için 1–3 (maks 5) kısa, numaralı soru sor. " +
	"Acil değerlendirmesinde SADECE kanama veya zehirlenme red-flag sayılır. " +
	"Acil talimatı daha önce verdiysen tekrarlama; teyit isteme."

// InitialFromForm asks the first round of questions for a freshly submitted
// intake form, or the bare control token when the form is already enough.
func InitialFromForm(form pkg.PatientRecord) Prompt {
	greeting := "- SELAM: İsim sağlanmadığı için isim kullanmadan giriş cümlesi kur."
	if name := strings.TrimSpace(form.Name); name != "" {
		greeting = fmt.Sprintf("- SELAM: İlk cümlede yalnızca \"Merhaba %s, geçmiş olsun.\" diyerek giriş cümlesi kur.", name)
	}
	var b strings.Builder
	b.WriteString("HASTA FORMU\n")
	fmt.Fprintf(&b, "- İsim: %s\n", orDash(form.Name))
	fmt.Fprintf(&b, "- Yaş: %s\n", ageText(form.Age))
	fmt.Fprintf(&b, "- Cinsiyet: %s\n", orDash(form.Gender))
	fmt.Fprintf(&b, "- Ana şikayet/belirtiler: %s\n", orDash(form.Symptoms))
	fmt.Fprintf(&b, "- Süre: %s\n", orDash(form.Duration))
	fmt.Fprintf(&b, "- Ek notlar: %s\n\n", orDash(form.ExtraNotes))
	b.WriteString("KURALLAR:\n")
	b.WriteString(greeting + "\n")
	b.WriteString("- SORU MODU: Tanı tahmini, açıklama veya öneri YAPMA. Yalnızca eksik bilgiye yönelik 1–3 (maks 5) kısa, numaralı soru sor.\n")
	b.WriteString("- TUR SINIRI: En fazla 2 tur soru-cevap yap.\n")
	b.WriteString("- ACİL KARARI: Yalnızca durdurulamayan KANAMA veya olası ZEHİRLENME (ilaç/kimyasal/madde alımı; duman/gaz maruziyeti) durumunda acil kabul et.\n")
	b.WriteString("- ACİL ise: netçe belirt; 2–4 maddelik \"şimdi yapman gerekenler\" listesi + 112 yönlendirmesi ver. Ek soru sorma, teyit isteme.\n")
	b.WriteString("- BİTİRME: Bilgi uzman değerlendirmesi için YETERLİ ise TEK SATIRDA yalnızca " + GoExpertToken + " yaz.\n")
	return Prompt{System: systemGeneral, User: b.String()}
}

// ChatFollowUp builds the question-mode prompt for a free-form chat message.
// The greeting is only offered before the first question round.
func ChatFollowUp(message string, p pkg.PatientRecord, history []pkg.ChatTurn, rounds, maxRounds int) Prompt {
	greeting := ""
	if rounds == 0 {
		greeting = "Birkaç kısa sorum olacak. "
		if name := strings.TrimSpace(p.Name); name != "" {
			greeting = fmt.Sprintf("Merhaba %s, birkaç kısa sorum olacak. ", name)
		}
	}

	var b strings.Builder
	b.WriteString("HASTA ÖZETİ\n")
	fmt.Fprintf(&b, "- İsim: %s\n", orDash(p.Name))
	fmt.Fprintf(&b, "- Yaş/Cinsiyet: %s/%s\n", ageText(p.Age), orDash(p.Gender))
	fmt.Fprintf(&b, "- Şikayet: %s\n", orDash(p.Symptoms))
	fmt.Fprintf(&b, "- Süre: %s\n", orDash(p.Duration))
	fmt.Fprintf(&b, "- Notlar: %s\n", orDash(p.ExtraNotes))
	fmt.Fprintf(&b, "- Ek: %s\n\n", infoText(p.AdditionalInfo))
	fmt.Fprintf(&b, "ŞU ANA KADAR SORU–CEVAP TURU: %d\n\n", rounds)
	b.WriteString("SON KONUŞMA\n")
	b.WriteString(conversation(history, recentTurns))
	b.WriteString("\n\nKULLANICI MESAJI\n")
	b.WriteString(message)
	b.WriteString("\n\nGÖREV — KESİN KURAL:\n")
	fmt.Fprintf(&b, "1) Eğer (ŞU ANA KADAR TUR SAYISI ≥ %d) ise: başka metin ekleme, TEK SATIRDA SADECE %s yaz.\n", maxRounds, GoExpertToken)
	b.WriteString("2) Red-flag (kanama/zehirlenme) varsa: acil uyarısı + 2–4 adımlık talimat + 112 (teyit isteme, soru sorma).\n")
	b.WriteString("3) Aksi halde: " + greeting +
		"\"Size daha iyi yardımcı olabilmem için lütfen aşağıdaki soruları cevaplayın.\" diye tek cümlelik giriş yaz; " +
		"ardından birbirinden farklı 1–3 numaralı hedefli soru üret; açıklama/öneri yazma.\n")
	return Prompt{System: questionModeSystem, User: b.String()}
}

// FollowUp asks targeted questions after the patient answered a round.
func FollowUp(p pkg.PatientRecord) Prompt {
	greeting := "Birkaç kısa sorum olacak."
	if name := strings.TrimSpace(p.Name); name != "" {
		greeting = fmt.Sprintf("Merhaba %s, birkaç kısa sorum olacak.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ÖNCEKİ CEVAPLAR: %s\n", answersText(p.PreviousAnswers))
	fmt.Fprintf(&b, "MEVCUT ŞİKAYET/ÖYKÜ: %s\n\n", orDash(p.Symptoms))
	b.WriteString("Görev:\n")
	b.WriteString("- Acil (kanama/zehirlenme) talimatı daha önce verildiyse tekrarlama; teyit isteme; yeni soru sorma.\n")
	b.WriteString("- Red-flag yoksa: " + greeting + " Sonrasında 1–3 hedefli soru; açıklama/öneri yazma.\n")
	b.WriteString("- Toplam soru-cevap turu 2'yi aşma.\n")
	b.WriteString("- Yeterliyse SADECE " + GoExpertToken + ".\n")
	return Prompt{System: systemGeneral, User: b.String()}
}

// ExpertFromSummary is the hand-off prompt fed the case summary.
func ExpertFromSummary(summary string) Prompt {
	user := "Aşağıdaki vaka özetini değerlendir ve tek-paragraf halinde, uygulanabilir, kısa bir klinik yorum yaz.\n\n" +
		"VAKA ÖZETİ\n" + summary + "\n\n" +
		"İçerik: en olası neden(ler) + kısa gerekçe; ne zaman başvurmalı (bugün/48–72s/elektif); " +
		"evde yapılabilecekler/kaçınılacaklar; gerekli test/bölüm; hangi durumda tekrar başvurmalı.\n" +
		"Liste ve başlık kullanma.\n"
	return Prompt{System: expertSystem, User: user}
}

// Expert is the direct expert evaluation of a patient record.
func Expert(p pkg.PatientRecord) Prompt {
	var b strings.Builder
	b.WriteString("HASTA DOSYASI\n")
	fmt.Fprintf(&b, "- Yaş/Cinsiyet: %s/%s\n", ageText(p.Age), orDash(p.Gender))
	fmt.Fprintf(&b, "- Ana şikayet: %s\n", orDash(p.Symptoms))
	fmt.Fprintf(&b, "- Önceki yanıtlar: %s\n\n", answersText(p.PreviousAnswers))
	b.WriteString("Tek-paragraf kısa bir değerlendirme yaz: olası neden(ler) + kısa gerekçe; ne zaman başvurmalı; " +
		"evde yapılabilecekler/kaçınılacaklar; gerekli test/bölüm; takip tetikleyicileri.\n")
	return Prompt{System: expertSystem, User: b.String()}
}

// ExpertReply answers a chat message once the session is in expert mode.
func ExpertReply(summary, message string) Prompt {
	user := "Kısa vaka özeti:\n" + summary + "\n\n" +
		"Kullanıcı sorusu/mesajı:\n" + message + "\n\n" +
		"Kısa ve doğrudan cevap ver."
	return Prompt{System: expertReplySystem, User: user}
}

// LabAnalysis interprets the submitted lab panel.
func LabAnalysis(p pkg.PatientRecord) Prompt {
	extracted := "—"
	if s, ok := p.AdditionalInfo["extractedText"].(string); ok && s != "" {
		extracted = s
	}
	var b strings.Builder
	b.WriteString("TAHLİL BİLGİLERİ\n")
	fmt.Fprintf(&b, "- Yaş/Cinsiyet: %s/%s\n", ageText(p.Age), orDash(p.Gender))
	fmt.Fprintf(&b, "- Sonuçlar: %s\n", labsText(p.LabResults))
	fmt.Fprintf(&b, "- Ek metin: %s\n\n", extracted)
	b.WriteString("ÖNEMLİ KURALLAR:\n")
	b.WriteString("- SADECE verilen tahlil sonuçlarına göre analiz yap\n")
	b.WriteString("- Ek soru sorma, başka test önerme\n")
	b.WriteString("- Acil durum tespiti yapma (sadece gerçekten kritik değerler varsa uyar)\n\n")
	b.WriteString("Çıktı sırası: genel değerlendirme (normal/anormal değerler); anormal değerlerin olası nedenleri; " +
		"yaşam tarzı önerileri (beslenme, spor, dikkat edilecekler); hangi durumda doktora başvurulmalı.\n")
	b.WriteString("Kısa, net ve uygulanabilir öneriler ver. Başlık kullanma, liste yapma.\n")
	return Prompt{System: systemGeneral, User: b.String()}
}

// LabFollowUp asks the optional clarifying questions about a lab panel.
func LabFollowUp(p pkg.PatientRecord) Prompt {
	var b strings.Builder
	b.WriteString("LAB ÖZETİ\n")
	fmt.Fprintf(&b, "- Sonuçlar: %s\n", labsText(p.LabResults))
	fmt.Fprintf(&b, "- Ek bilgiler/cevaplar: %s\n\n", infoText(p.AdditionalInfo))
	b.WriteString("Görev:\n")
	b.WriteString("- Kısa açıklama + 2–4 hedefli ek soru çıkar (sadece gerekiyorsa).\n")
	b.WriteString("- Tekrar yok, numaralı ve kısa.\n")
	return Prompt{System: systemGeneral, User: b.String()}
}

// LabFinal produces the closing lab report.
func LabFinal(p pkg.PatientRecord) Prompt {
	var b strings.Builder
	b.WriteString("HASTA PROFİLİ\n")
	fmt.Fprintf(&b, "- Yaş/Cinsiyet: %s/%s\n", ageText(p.Age), orDash(p.Gender))
	fmt.Fprintf(&b, "- Lab sonuçları: %s\n", labsText(p.LabResults))
	fmt.Fprintf(&b, "- Ek/cevaplar: %s\n\n", infoText(p.AdditionalInfo))
	b.WriteString("Çıktı:\n")
	b.WriteString("- Sonuç özeti (kritik/dikkat/normal)\n")
	b.WriteString("- Risk düzeyi (yüksek/orta/düşük) ve başvuru zamanı\n")
	b.WriteString("- Kısa öneriler (evde, kaçınılacaklar, gerekirse test/bölüm)\n")
	b.WriteString("- Takip planı (ne zaman tekrar bakılmalı)\n")
	b.WriteString("Elde olmayan alanlar için '—' kullan; gereksiz tekrar ve başlık yok.\n")
	return Prompt{System: systemGeneral, User: b.String()}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func ageText(age *int) string {
	if age == nil {
		return "-"
	}
	return strconv.Itoa(*age)
}

func answersText(answers []string) string {
	if len(answers) == 0 {
		return "—"
	}
	return strings.Join(answers, "; ")
}

func labsText(labs []pkg.LabValue) string {
	if len(labs) == 0 {
		return "—"
	}
	parts := make([]string, len(labs))
	for i, lv := range labs {
		parts[i] = patient.FormatLabValue(lv)
	}
	return strings.Join(parts, "; ")
}

// infoText renders additionalInfo as JSON; map keys come out sorted.
func infoText(info map[string]interface{}) string {
	if len(info) == 0 {
		return "—"
	}
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Sprint(info)
	}
	return string(b)
}

// conversation renders the last n turns as "role: content" lines.
func conversation(history []pkg.ChatTurn, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	lines := make([]string, len(history))
	for i, t := range history {
		lines[i] = string(t.Role) + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}
