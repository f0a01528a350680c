package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextExtractor pulls raw text out of a document payload.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFor returns the extractor registered for format.
func ExtractorFor(format DocumentFormat) (TextExtractor, error) {
	switch format {
	case FormatPDF:
		return pdfExtractor{}, nil
	case FormatDOCX:
		return docxExtractor{}, nil
	case FormatDOC:
		return docExtractor{}, nil
	case FormatText, FormatMarkdown:
		return plainTextExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

type pdfExtractor struct{}

func (pdfExtractor) Extract(_ context.Context, data []byte) (text string, err error) {
	// The PDF reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, doc.NumPage())
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		pages = append(pages, content)
	}

	return strings.Join(pages, "\n\n"), nil
}

type docxExtractor struct{}

func (docxExtractor) Extract(_ context.Context, data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	var body *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("word/document.xml not found in archive")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return docxText(rc)
}

// docxText walks WordprocessingML and emits one line per paragraph. Table
// cells are joined with " | " so a table row stays on one line.
func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var (
		out       strings.Builder
		paragraph strings.Builder
		row       []string
		cellDepth int
		inText    bool
	)

	flushParagraph := func() {
		text := strings.TrimSpace(paragraph.String())
		paragraph.Reset()
		if text == "" {
			return
		}
		if cellDepth > 0 {
			if n := len(row); n > 0 && row[n-1] != "" {
				row[n-1] += " " + text
			} else if n > 0 {
				row[n-1] = text
			}
			return
		}
		out.WriteString(text)
		out.WriteByte('\n')
	}

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				paragraph.WriteByte('\t')
			case "br", "cr":
				paragraph.WriteByte('\n')
			case "tr":
				row = row[:0]
			case "tc":
				cellDepth++
				row = append(row, "")
			}
		case xml.CharData:
			if inText {
				paragraph.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushParagraph()
			case "tc":
				cellDepth--
			case "tr":
				if line := strings.TrimSpace(strings.Join(row, " | ")); strings.Trim(line, "| ") != "" {
					out.WriteString(line)
					out.WriteByte('\n')
				}
				row = row[:0]
			}
		}
	}

	return out.String(), nil
}

// minDocRun is the shortest printable run kept from a legacy .doc stream.
const minDocRun = 4

type docExtractor struct{}

// Extract recovers text from a binary Word document by scanning for printable
// runs, once as 8-bit text and once as UTF-16LE, and keeping the richer result.
func (docExtractor) Extract(_ context.Context, data []byte) (string, error) {
	narrow := printableRuns(string(bytes.ToValidUTF8(data, nil)))

	decoder := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder()
	wideBytes, _, err := transform.Bytes(decoder, data)
	wide := ""
	if err == nil {
		wide = printableRuns(string(wideBytes))
	}

	if len(wide) > len(narrow) {
		return wide, nil
	}
	return narrow, nil
}

func printableRuns(s string) string {
	var (
		out strings.Builder
		run strings.Builder
		n   int
	)
	flush := func() {
		if n >= minDocRun {
			out.WriteString(strings.TrimSpace(run.String()))
			out.WriteByte('\n')
		}
		run.Reset()
		n = 0
	}
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\v':
			flush()
		case r == utf8.RuneError:
			flush()
		case unicode.IsPrint(r) || r == '\t':
			run.WriteRune(r)
			n++
		default:
			flush()
		}
	}
	flush()
	return out.String()
}

type plainTextExtractor struct{}

func (plainTextExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return decodeText(data)
}

const utf8BOM = "\xef\xbb\xbf"

func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), utf8BOM), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, mimeText)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", errors.New("transcoded text is not valid utf-8")
	}
	return strings.TrimPrefix(string(decoded), utf8BOM), nil
}
