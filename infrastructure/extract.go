package infrastructure

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nguyenthenguyen/docx"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

// ErrUnsupportedDocument is returned for file types the extractor cannot read.
var ErrUnsupportedDocument = errors.New("unsupported document type")

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
	blankLines       = regexp.MustCompile(`\n{3,}`)
)

// TextExtractor turns uploaded resumes and cover letters into plain text.
type TextExtractor struct {
	logger *zap.Logger
}

// NewTextExtractor sets the unidoc license when one is configured.
func NewTextExtractor(licenseKey string, logger *zap.Logger) (*TextExtractor, error) {
	if key := strings.TrimSpace(licenseKey); key != "" {
		if err := license.SetMeteredKey(key); err != nil {
			return nil, fmt.Errorf("set unidoc license: %w", err)
		}
	}
	return &TextExtractor{logger: orNop(logger)}, nil
}

// Extract returns the text content of a .txt, .pdf or .docx file.
func (e *TextExtractor) Extract(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("document is empty")
	}

	var (
		text string
		err  error
	)
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "txt", "md":
		if !utf8.Valid(data) {
			return "", errors.New("text document is not valid UTF-8")
		}
		text = string(data)
	case "pdf":
		text, err = e.extractPDF(data)
	case "docx":
		text, err = extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, filename)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no text could be extracted from %s", filename)
	}
	e.logger.Debug("extracted document text", zap.String("filename", filename), zap.Int("characters", utf8.RuneCountInString(text)))
	return text, nil
}

func (e *TextExtractor) extractPDF(data []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("get pdf page count: %w", err)
	}
	if numPages == 0 {
		return "", errors.New("pdf has no pages")
	}

	var builder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			e.logger.Warn("skipping unreadable pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			e.logger.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		pageText, err := ex.ExtractText()
		if err != nil {
			e.logger.Warn("skipping pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n\n")
	}
	return builder.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = docxParagraphEnd.ReplaceAllString(content, "\n")
	content = xmlTag.ReplaceAllString(content, "")
	content = blankLines.ReplaceAllString(content, "\n\n")
	return content, nil
}
