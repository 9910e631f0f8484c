package rag

import "github.com/studyhall/ragchat/internal/vector"

const (
	fallbackEnglish = "I couldn't find relevant information in the textbook to answer your question. Could you try rephrasing it or asking about a different topic from the course material?"
	fallbackUrdu    = "مجھے آپ کے سوال کا جواب دینے کے لیے نصابی کتاب میں متعلقہ معلومات نہیں ملیں۔ کیا آپ اسے دوبارہ بیان کر سکتے ہیں یا نصابی مواد سے کسی اور موضوع کے بارے میں پوچھ سکتے ہیں؟"
)

// FallbackMessage is the canned reply sent when retrieval produced nothing
// above the score threshold.
func FallbackMessage(language string) string {
	if language == vector.LanguageUrdu {
		return fallbackUrdu
	}
	return fallbackEnglish
}
