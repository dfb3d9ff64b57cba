package domain

// Language is a supported answer language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// NormalizeLanguage maps anything other than Arabic to English.
func NormalizeLanguage(s string) Language {
	if Language(s) == LanguageArabic {
		return LanguageArabic
	}
	return LanguageEnglish
}

// IsValidLanguage reports whether s names a supported language.
func IsValidLanguage(s string) bool {
	switch Language(s) {
	case LanguageEnglish, LanguageArabic:
		return true
	}
	return false
}

// Confidence is the coarse reliability estimate attached to an answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidence levels so they can be compared.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// HistoryRole is the speaker of a conversation turn.
type HistoryRole string

const (
	HistoryRoleUser      HistoryRole = "user"
	HistoryRoleAssistant HistoryRole = "assistant"
)

// HistoryTurn is one prior message in the conversation.
type HistoryTurn struct {
	Role HistoryRole `json:"role" validate:"required,oneof=user assistant"`
	Text string      `json:"text"`
}

// Citation points at exactly one retrieved chunk. Every metadata field is
// copied from that chunk.
type Citation struct {
	DocTitle        string `json:"doc_title" validate:"required"`
	DocID           string `json:"doc_id" validate:"required"`
	DocumentVersion string `json:"document_version" validate:"required"`
	PageNumber      *int   `json:"page_number" validate:"omitempty,gte=0"`
	StartOffset     *int   `json:"start_offset" validate:"omitempty,gte=0"`
	EndOffset       *int   `json:"end_offset" validate:"omitempty,gte=0"`
	Quote           string `json:"quote" validate:"required,maxwords=25"`
	SourceURI       string `json:"source_uri" validate:"required"`
}

// AnswerPayload is the only shape ever returned to a caller.
type AnswerPayload struct {
	Language      Language   `json:"language" validate:"required,oneof=en ar"`
	Answer        string     `json:"answer" validate:"required"`
	Confidence    Confidence `json:"confidence" validate:"required,oneof=high medium low"`
	Citations     []Citation `json:"citations" validate:"required,dive"`
	MissingInfo   *string    `json:"missing_info,omitempty" validate:"omitempty,min=1"`
	SafeNextSteps []string   `json:"safe_next_steps" validate:"required,max=3,dive,required"`
}
