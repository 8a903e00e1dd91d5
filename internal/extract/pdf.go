package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFText extracts the plain text of a PDF document. The underlying
// parser panics on some malformed cross-reference tables, so the panic
// is converted to an error here rather than taking down a worker.
func PDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return Normalize(b.String()), nil
}

// LooksLikePDF sniffs the magic bytes of a body, for responses served
// with a generic content type.
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
