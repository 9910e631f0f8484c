package rag

import (
	"fmt"
	"strings"

	"github.com/studyhall/ragchat/internal/vector"
)

// Citation points the student back at the textbook chapter a passage came
// from. URLs are site-relative so the frontend can prefix its own host.
type Citation struct {
	ChapterID string `json:"chapterId"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

// ExtractCitations collapses the retrieved matches into one citation per
// chapter. The first match for a chapter wins, which preserves the score
// ordering coming out of the search.
func ExtractCitations(matches []vector.Match, language string) []Citation {
	citations := make([]Citation, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if m.ChapterID == "" || seen[m.ChapterID] {
			continue
		}
		seen[m.ChapterID] = true
		citations = append(citations, Citation{
			ChapterID: m.ChapterID,
			Title:     m.ChapterTitle,
			URL:       BuildChapterURL(m.ChapterID, language),
		})
	}
	return citations
}

// BuildChapterURL maps a dotted chapter identifier like "2.3.1" onto the
// docs site layout, where the leading segment is the module and the rest is
// the chapter. Urdu pages live under a /ur prefix.
func BuildChapterURL(chapterID, language string) string {
	prefix := ""
	if language == vector.LanguageUrdu {
		prefix = "/ur"
	}

	parts := strings.Split(chapterID, ".")
	if len(parts) >= 2 {
		return fmt.Sprintf("%s/docs/module-%s/chapter-%s", prefix, parts[0], strings.Join(parts[1:], "."))
	}
	return fmt.Sprintf("%s/docs/%s", prefix, chapterID)
}
