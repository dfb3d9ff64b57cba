package service

import (
	"strings"

	"github.com/cloo-solutions/copilot/internal/domain"
)

const (
	RefusalTextEN = "I can't answer from the bank's approved documents for this question."
	RefusalTextAR = "لا أستطيع الإجابة من مستندات البنك المعتمدة لهذا السؤال."

	MissingInfoEN = "No approved documents matched this question, or the evidence was too weak. " +
		"This may be outside the approved knowledge base. " +
		"Try adding the policy name, product name, or section title."
	MissingInfoAR = "لا توجد مستندات معتمدة مطابقة لهذا السؤال، أو أن الأدلة ضعيفة. " +
		"قد يكون هذا خارج نطاق قاعدة المعرفة المعتمدة. " +
		"جرّب إضافة اسم السياسة أو المنتج أو عنوان القسم."

	maxSafeNextSteps = 3
)

var (
	safeNextStepsEN = []string{
		"Search by policy or product name.",
		"Include the document section or clause title.",
		"Ask about a specific form, fee, or limit.",
	}
	safeNextStepsAR = []string{
		"ابحث باسم السياسة أو المنتج.",
		"اذكر عنوان القسم أو البند في المستند.",
		"اسأل عن نموذج أو رسوم أو حد محدد.",
	}
)

// RefusalText returns the fixed refusal sentence for lang.
func RefusalText(lang domain.Language) string {
	if lang == domain.LanguageArabic {
		return RefusalTextAR
	}
	return RefusalTextEN
}

// IsRefusalText reports whether s is the refusal sentence in any supported
// language.
func IsRefusalText(s string) bool {
	s = strings.TrimSpace(s)
	return s == RefusalTextEN || s == RefusalTextAR
}

// SafeNextSteps returns a fresh copy of the localized suggestions.
func SafeNextSteps(lang domain.Language) []string {
	src := safeNextStepsEN
	if lang == domain.LanguageArabic {
		src = safeNextStepsAR
	}
	n := min(len(src), maxSafeNextSteps)
	out := make([]string, n)
	copy(out, src[:n])
	return out
}

// MissingInfo returns the localized explanation for a low-confidence answer
// and nil for any other confidence.
func MissingInfo(confidence domain.Confidence, lang domain.Language) *string {
	if confidence != domain.ConfidenceLow {
		return nil
	}
	text := MissingInfoEN
	if lang == domain.LanguageArabic {
		text = MissingInfoAR
	}
	return &text
}

// RefusalPayload builds the canonical refusal for lang. Unsupported
// languages fall back to English.
func RefusalPayload(lang domain.Language) domain.AnswerPayload {
	lang = domain.NormalizeLanguage(string(lang))
	return domain.AnswerPayload{
		Language:      lang,
		Answer:        RefusalText(lang),
		Confidence:    domain.ConfidenceLow,
		Citations:     []domain.Citation{},
		MissingInfo:   MissingInfo(domain.ConfidenceLow, lang),
		SafeNextSteps: SafeNextSteps(lang),
	}
}
