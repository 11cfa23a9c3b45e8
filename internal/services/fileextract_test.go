package services

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reopen zip: %v", err)
	}
	return r
}

func slideXML(runs ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sld><p:txBody>`)
	for _, r := range runs {
		b.WriteString("<a:t>")
		b.WriteString(r)
		b.WriteString("</a:t>")
	}
	b.WriteString(`</p:txBody></p:sld>`)
	return b.String()
}

func TestExtractSlides_NumericOrder(t *testing.T) {
	// lexicographic order would put slide10 between slide1 and slide2
	r := buildZip(t, map[string]string{
		"ppt/slides/slide2.xml":  slideXML("second slide"),
		"ppt/slides/slide10.xml": slideXML("tenth slide"),
		"ppt/slides/slide1.xml":  slideXML("first slide"),
	})

	got := extractSlides(r)
	want := "[Slide 1] first slide\n[Slide 2] second slide\n[Slide 10] tenth slide"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractSlides_IgnoresNonSlideEntries(t *testing.T) {
	r := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml":     slideXML("real content"),
		"ppt/notesSlides/note1.xml": slideXML("speaker notes"),
		"ppt/media/image1.png":      "binary junk",
		"docProps/core.xml":         "<t>metadata</t>",
	})

	got := extractSlides(r)
	if got != "[Slide 1] real content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractSlides_JoinsRunsAndSkipsEmptySlides(t *testing.T) {
	r := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": slideXML("Title", "and", "body"),
		"ppt/slides/slide2.xml": slideXML("", "   "),
		"ppt/slides/slide3.xml": slideXML("last"),
	})

	got := extractSlides(r)
	want := "[Slide 1] Title and body\n[Slide 3] last"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractSlideText_UnescapesEntities(t *testing.T) {
	xml := `<a:t>Tom &amp; Jerry</a:t><a:t>&lt;tag&gt; &quot;quoted&quot; it&apos;s</a:t>`
	got := extractSlideText(xml)
	want := `Tom & Jerry <tag> "quoted" it's`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractPDF_MissingFile(t *testing.T) {
	s := NewFileExtractService()
	if got := s.ExtractPDF("/nonexistent/file.pdf"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := s.ExtractPDF(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestExtractPPTX_MissingFile(t *testing.T) {
	s := NewFileExtractService()
	if got := s.ExtractPPTX("/nonexistent/file.pptx"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
