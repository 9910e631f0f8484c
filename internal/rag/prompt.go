package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/studyhall/ragchat/internal/auth"
	"github.com/studyhall/ragchat/internal/vector"
)

// selectedTextLimit bounds the highlighted excerpt carried into the prompt.
const selectedTextLimit = 200

const promptTemplate = `You are an enthusiastic AI teaching assistant helping students learn about Physical AI and humanoid robotics from their textbook. 🤖

Here is relevant content from the textbook:

---
%s
---

Student's question: %s

Instructions:
- Answer using ONLY the information provided above
- Be clear, accurate, and educational
%s- Use relevant emojis (🤖 💡 ⚙️ 🎯 📊 🔧 ✨ 📚 etc.) to make explanations engaging and highlight key points
- Explain concepts step-by-step when appropriate
- Break down complex topics with examples
- If the content doesn't fully answer the question, acknowledge this honestly
- Do NOT mention "Context 1", "Context 2", or reference placeholder text
- Write naturally as if teaching a curious student

Your answer:`

var difficultyInstructions = map[string]string{
	auth.DifficultyBeginner:     "- Explain concepts simply, avoid jargon, use analogies and examples\n",
	auth.DifficultyIntermediate: "- Balance technical depth with clarity, assume some robotics knowledge\n",
	auth.DifficultyAdvanced:     "- Provide detailed technical explanations, include equations and advanced concepts\n",
}

// buildPrompt assembles the grounded generation prompt from the retrieved
// passages. When the student highlighted text in the reader, a bounded
// excerpt is prepended to each passage so the model sees what prompted
// the question alongside every piece of context.
func buildPrompt(question string, matches []vector.Match, selectedText string, difficulty string) string {
	excerpt := truncateRunes(selectedText, selectedTextLimit)

	passages := make([]string, len(matches))
	for i, m := range matches {
		if excerpt != "" {
			passages[i] = fmt.Sprintf("[Selected Text: %s...]\n\n%s", excerpt, m.ChunkText)
		} else {
			passages[i] = m.ChunkText
		}
	}

	context := strings.Join(passages, "\n\n---\n\n")
	return fmt.Sprintf(promptTemplate, context, question, difficultyInstructions[difficulty])
}

// truncateRunes bounds s to n characters, never splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
