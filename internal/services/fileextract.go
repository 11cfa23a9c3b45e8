package services

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minPlausibleChars rejects document extractions that are technically
// non-empty but useless: a shorter result almost always means a scanned
// image-only PDF or a deck of nothing but pictures.
const minPlausibleChars = 80

type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

// ExtractPDF pulls the text layer across all pages. Returns "" when the file
// is unreadable or the text layer is implausibly short.
func (s *FileExtractService) ExtractPDF(path string) string {
	if path == "" {
		return ""
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		log.Printf("pdf open failed for %s: %v", path, err)
		return ""
	}
	defer f.Close()

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text := CleanText(b.String())
	if len(text) < minPlausibleChars {
		return ""
	}
	return text
}

// ExtractPPTX unzips the OOXML container, walks ppt/slides/slideN.xml in
// numeric order, and regex-extracts the text runs. Each slide's text is
// prefixed with a [Slide N] marker that the generation engine's shrink step
// keys on.
func (s *FileExtractService) ExtractPPTX(path string) string {
	if path == "" {
		return ""
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		log.Printf("pptx open failed for %s: %v", path, err)
		return ""
	}
	defer r.Close()

	text := extractSlides(&r.Reader)
	if len(text) < minPlausibleChars {
		return ""
	}
	return text
}

var slideNamePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func extractSlides(r *zip.Reader) string {
	type slideFile struct {
		num  int
		file *zip.File
	}
	var slides []slideFile
	for _, f := range r.File {
		m := slideNamePattern.FindStringSubmatch(f.Name)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var b strings.Builder
	for _, sl := range slides {
		rc, err := sl.file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		text := extractSlideText(string(data))
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[Slide %d] %s\n", sl.num, text)
	}

	return strings.TrimSpace(b.String())
}

var slideTextRun = regexp.MustCompile(`<a:t>([^<]*)</a:t>`)

func extractSlideText(xml string) string {
	var parts []string
	for _, m := range slideTextRun.FindAllStringSubmatch(xml, -1) {
		run := strings.TrimSpace(unescapeXMLEntities(m[1]))
		if run != "" {
			parts = append(parts, run)
		}
	}
	return strings.Join(parts, " ")
}

var xmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

func unescapeXMLEntities(s string) string {
	return xmlEntityReplacer.Replace(s)
}
