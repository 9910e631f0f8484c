// Package ingest turns textbook content into embedded chunks in the vector
// store. Content arrives either from a local MDX/Markdown tree or from a
// crawled docs site; both paths share the chunker and the upload pipeline.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/studyhall/ragchat/internal/log"
)

// Document is one parsed source ready for chunking.
type Document struct {
	ChapterID    string
	ChapterTitle string
	Text         string
}

var (
	frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)
	fencedCodeRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`]+`")
	importRe      = regexp.MustCompile(`(?m)^import\s+.*?;?\n`)
	selfClosingRe = regexp.MustCompile(`<\w+[^>]*?/>`)
	pairedTagRe   = regexp.MustCompile(`(?s)<(\w+)[^>]*?>.*?</\w+>`)
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	boldRe        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe      = regexp.MustCompile(`\*([^*]+)\*`)
	boldUnderRe   = regexp.MustCompile(`__([^_]+)__`)
	italicUnderRe = regexp.MustCompile(`_([^_]+)_`)
	headingRe     = regexp.MustCompile(`(?m)^#+\s+`)
	bulletRe      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	orderedRe     = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	blankRunsRe   = regexp.MustCompile(`\n{3,}`)
	spaceRunsRe   = regexp.MustCompile(` {2,}`)
	chapterIDRe   = regexp.MustCompile(`(\d+\.[\d.]+)`)
)

// ParseMDX strips MDX down to prose: frontmatter out (title kept), code
// blocks and JSX components dropped, markdown markers removed.
func ParseMDX(content string) (title, text string) {
	if m := frontmatterRe.FindStringSubmatch(content); m != nil {
		title = frontmatterTitle(m[1])
		content = content[len(m[0]):]
	}

	content = fencedCodeRe.ReplaceAllString(content, "")
	content = inlineCodeRe.ReplaceAllString(content, "")
	content = importRe.ReplaceAllString(content, "")
	content = selfClosingRe.ReplaceAllString(content, "")
	content = pairedTagRe.ReplaceAllString(content, "")

	content = linkRe.ReplaceAllString(content, "$1")
	content = boldRe.ReplaceAllString(content, "$1")
	content = italicRe.ReplaceAllString(content, "$1")
	content = boldUnderRe.ReplaceAllString(content, "$1")
	content = italicUnderRe.ReplaceAllString(content, "$1")
	content = headingRe.ReplaceAllString(content, "")
	content = bulletRe.ReplaceAllString(content, "")
	content = orderedRe.ReplaceAllString(content, "")

	content = blankRunsRe.ReplaceAllString(content, "\n\n")
	content = spaceRunsRe.ReplaceAllString(content, " ")

	return title, strings.TrimSpace(content)
}

// frontmatterTitle pulls title out of the frontmatter block. Frontmatter in
// the textbook is flat key: value lines, full YAML is not needed.
func frontmatterTitle(frontmatter string) string {
	for _, line := range strings.Split(frontmatter, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "title" {
			return strings.Trim(strings.TrimSpace(value), `"'`)
		}
	}
	return ""
}

// ChapterIDFromPath extracts a dotted chapter id like "1.1" from the
// filename, falling back to parent directories and finally the bare
// filename. "docs/module-1/1.1-introduction.mdx" yields "1.1".
func ChapterIDFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := chapterIDRe.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	dir := filepath.Dir(path)
	for dir != "." && dir != string(filepath.Separator) {
		if m := chapterIDRe.FindStringSubmatch(filepath.Base(dir)); m != nil {
			return m[1]
		}
		dir = filepath.Dir(dir)
	}
	return base
}

// ParseDir walks root for .mdx and .md files and parses each into a
// Document. Unreadable files are logged and skipped.
func ParseDir(root string, logger log.Logger) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".mdx" && ext != ".md" {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}

		title, text := ParseMDX(string(raw))
		if text == "" {
			logger.Debug("skipping empty file", "path", path)
			return nil
		}

		docs = append(docs, Document{
			ChapterID:    ChapterIDFromPath(path),
			ChapterTitle: title,
			Text:         text,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	logger.Info("parsed content directory", "root", root, "documents", len(docs))
	return docs, nil
}
