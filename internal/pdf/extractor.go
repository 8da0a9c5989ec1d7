package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/dharsanguruparan/Quill/internal/model"
)

// ExtractPages reads PDF bytes and returns one text unit per page using
// ledongthuc/pdf. Pages without a content stream are kept as empty units so
// the result length always equals the document page count.
func ExtractPages(data []byte) (pages []model.Page, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", model.ErrParse)
	}
	// The reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read pdf: %v: %w", r, model.ErrParse)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w: %w", model.ErrParse, err)
	}
	total := doc.NumPage()
	pages = make([]model.Page, 0, total)
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			pages = append(pages, model.Page{Number: n})
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w: %w", n, model.ErrParse, err)
		}
		pages = append(pages, model.Page{Number: n, Text: strings.TrimSpace(content)})
	}
	return pages, nil
}

// Parser adapts ExtractPages to the loader's parser interface.
type Parser struct{}

func (Parser) Parse(data []byte) ([]model.Page, error) {
	return ExtractPages(data)
}
