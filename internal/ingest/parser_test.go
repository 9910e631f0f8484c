package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/studyhall/ragchat/internal/log"
)

const sampleMDX = `---
title: "Introduction to Kinematics"
sidebar_label: Kinematics
---

import Tabs from '@theme/Tabs';

# Kinematics

Forward kinematics maps **joint angles** to the end effector [pose](https://example.com/pose).

<Tabs>
  <TabItem value="a">hidden widget text</TabItem>
</Tabs>

` + "```python\nprint(\"not prose\")\n```" + `

- Joints rotate
- Links are rigid

Inline ` + "`code`" + ` vanishes too.
`

func TestParseMDX(t *testing.T) {
	title, text := ParseMDX(sampleMDX)

	if title != "Introduction to Kinematics" {
		t.Errorf("title = %q", title)
	}
	if strings.Contains(text, "not prose") {
		t.Error("code block leaked into text")
	}
	if strings.Contains(text, "hidden widget") {
		t.Error("JSX component leaked into text")
	}
	if strings.Contains(text, "import Tabs") {
		t.Error("import statement leaked into text")
	}
	if strings.Contains(text, "**") || strings.Contains(text, "](") {
		t.Error("markdown markers survived cleanup")
	}
	if !strings.Contains(text, "joint angles") {
		t.Error("bold text content lost")
	}
	if !strings.Contains(text, "pose") {
		t.Error("link text lost")
	}
	if !strings.Contains(text, "Joints rotate") {
		t.Error("list content lost")
	}
}

func TestParseMDXNoFrontmatter(t *testing.T) {
	title, text := ParseMDX("# Heading\n\nplain body")
	if title != "" {
		t.Errorf("title = %q, want empty", title)
	}
	if text != "Heading\n\nplain body" {
		t.Errorf("text = %q", text)
	}
}

func TestChapterIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"docs/module-1/week-1-2/1.1-introduction.mdx", "1.1"},
		{"docs/2.3.4-advanced-control.mdx", "2.3.4"},
		{"docs/1.2-sensors/overview.mdx", "1.2"},
		{"docs/glossary.mdx", "glossary"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ChapterIDFromPath(tt.path); got != tt.want {
				t.Errorf("ChapterIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "1.1-intro.mdx"), sampleMDX)
	writeFile(t, filepath.Join(dir, "nested", "1.2-sensors.md"), "---\ntitle: Sensors\n---\n\nLidar measures distance.")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "not markdown")
	writeFile(t, filepath.Join(dir, "empty.mdx"), "---\ntitle: Empty\n---\n")

	docs, err := ParseDir(dir, log.NewNop())
	if err != nil {
		t.Fatalf("ParseDir() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("documents = %d, want 2", len(docs))
	}

	byID := make(map[string]Document, len(docs))
	for _, d := range docs {
		byID[d.ChapterID] = d
	}
	if byID["1.1"].ChapterTitle != "Introduction to Kinematics" {
		t.Errorf("1.1 title = %q", byID["1.1"].ChapterTitle)
	}
	if !strings.Contains(byID["1.2"].Text, "Lidar") {
		t.Errorf("1.2 text = %q", byID["1.2"].Text)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
