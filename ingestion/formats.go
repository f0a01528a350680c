// Package ingestion turns uploaded health-check reports into normalized text,
// chunks and metrics, and hands the result to the configured indexes.
package ingestion

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DocumentFormat enumerates supported report payload formats.
type DocumentFormat string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown DocumentFormat = ""
	// FormatPDF represents PDF documents.
	FormatPDF DocumentFormat = "pdf"
	// FormatDOCX represents Office Open XML word processing documents.
	FormatDOCX DocumentFormat = "docx"
	// FormatDOC represents legacy binary Word documents.
	FormatDOC DocumentFormat = "doc"
	// FormatText represents plain text.
	FormatText DocumentFormat = "text"
	// FormatMarkdown represents Markdown documents, read as plain text.
	FormatMarkdown DocumentFormat = "markdown"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDOC  = "application/msword"
	mimeText = "text/plain"
)

// DetectFormat infers a format from the file extension and, when that is
// missing or unknown, from the payload's leading bytes.
func DetectFormat(name string, data []byte) DocumentFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".doc":
		return FormatDOC
	case ".txt", ".text", ".log":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	}

	if len(data) == 0 {
		return FormatUnknown
	}
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		switch {
		case mt.Is(mimePDF):
			return FormatPDF
		case mt.Is(mimeDOCX):
			return FormatDOCX
		case mt.Is(mimeDOC):
			return FormatDOC
		case mt.Is(mimeText):
			return FormatText
		}
	}
	return FormatUnknown
}

// DetectMIME reports the sniffed MIME type of data.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}
