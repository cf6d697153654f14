package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageText is the embedded text of one PDF page.
type PageText struct {
	Number int
	Text   string
	Err    error
}

// TextReader pulls embedded text out of a PDF page by page.
type TextReader interface {
	ReadPages(ctx context.Context, path string) ([]PageText, error)
}

// PDFCPUReader reads content streams with pdfcpu and decodes the text-showing
// operators. It does not map CID fonts, so documents built on them usually
// fall through to OCR.
type PDFCPUReader struct{}

func (PDFCPUReader) ReadPages(ctx context.Context, path string) (pages []PageText, err error) {
	// pdfcpu panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	pages = make([]PageText, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if ctx.Err() != nil {
			return pages, ctx.Err()
		}
		text, err := readPage(pdfCtx, pageNr)
		pages = append(pages, PageText{Number: pageNr, Text: text, Err: err})
	}
	return pages, nil
}

func readPage(pdfCtx *model.Context, pageNr int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: pdfcpu panic: %v", pageNr, r)
		}
	}()
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", pageNr, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", pageNr, err)
	}
	return textFromContentStream(data), nil
}

// textFromContentStream walks a content stream and collects the operands of
// Tj, TJ, ' and ". Positioning operators become line breaks or spaces.
func textFromContentStream(data []byte) string {
	var sb strings.Builder
	var operands []string
	var array []string
	inArray := false

	emit := func(s string) {
		sb.WriteString(s)
	}
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, next := readLiteral(data, i)
			if inArray {
				array = append(array, s)
			} else {
				operands = append(operands, s)
			}
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i = skipDict(data, i)
		case c == '<':
			s, next := readHex(data, i)
			if inArray {
				array = append(array, s)
			} else {
				operands = append(operands, s)
			}
			i = next
		case c == '[':
			inArray = true
			array = array[:0]
			i++
		case c == ']':
			inArray = false
			operands = append(operands, strings.Join(array, ""))
			i++
		case isDelimiterSpace(c):
			i++
		default:
			start := i
			for i < len(data) && !isDelimiterSpace(data[i]) && !strings.ContainsRune("()<>[]/%", rune(data[i])) {
				i++
			}
			if start == i {
				// lone '/', '>' or similar
				i++
				for i < len(data) && !isDelimiterSpace(data[i]) && !strings.ContainsRune("()<>[]/%", rune(data[i])) {
					i++
				}
				continue
			}
			token := string(data[start:i])
			if inArray {
				if isNumber(token) && strings.HasPrefix(token, "-") && kerningGap(token) {
					array = append(array, " ")
				}
				continue
			}
			if isNumber(token) {
				continue
			}
			switch token {
			case "Tj", "TJ":
				if len(operands) > 0 {
					emit(operands[len(operands)-1])
				}
			case "'", "\"":
				newline()
				if len(operands) > 0 {
					emit(operands[len(operands)-1])
				}
			case "T*", "ET":
				newline()
			case "Td", "TD", "Tm":
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") && !strings.HasSuffix(sb.String(), " ") {
					sb.WriteByte(' ')
				}
			}
			operands = operands[:0]
		}
	}
	return cleanText(sb.String())
}

func isDelimiterSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isNumber(token string) bool {
	if token == "" {
		return false
	}
	for i, r := range token {
		if r == '-' || r == '+' {
			if i != 0 {
				return false
			}
			continue
		}
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// kerningGap reports whether a TJ adjustment is wide enough to be a word gap.
func kerningGap(token string) bool {
	var whole int
	for _, r := range strings.TrimPrefix(token, "-") {
		if r == '.' {
			break
		}
		whole = whole*10 + int(r-'0')
		if whole >= 200 {
			return true
		}
	}
	return false
}

func readLiteral(data []byte, start int) (string, int) {
	var buf bytes.Buffer
	depth := 0
	i := start
	for i < len(data) {
		c := data[i]
		switch {
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := 0
					n := 0
					for n < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7' {
						val = val*8 + int(data[i]-'0')
						i++
						n++
					}
					buf.WriteByte(byte(val))
					continue
				}
				buf.WriteByte(e)
			}
			i++
		case c == '(':
			if depth > 0 {
				buf.WriteByte(c)
			}
			depth++
			i++
		case c == ')':
			depth--
			i++
			if depth == 0 {
				return decodePDFBytes(buf.Bytes()), i
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return decodePDFBytes(buf.Bytes()), i
}

func readHex(data []byte, start int) (string, int) {
	i := start + 1
	var digits []byte
	for i < len(data) && data[i] != '>' {
		if c := data[i]; (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, len(digits)/2)
	for j := range raw {
		raw[j] = hexVal(digits[2*j])<<4 | hexVal(digits[2*j+1])
	}
	return decodePDFBytes(raw), i + 1
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func skipDict(data []byte, start int) int {
	depth := 0
	i := start
	for i+1 < len(data) {
		if data[i] == '<' && data[i+1] == '<' {
			depth++
			i += 2
			continue
		}
		if data[i] == '>' && data[i+1] == '>' {
			depth--
			i += 2
			if depth == 0 {
				return i
			}
			continue
		}
		i++
	}
	return len(data)
}

// decodePDFBytes handles UTF-16BE strings with a BOM and treats anything else
// as Latin-1, which matches PDFDocEncoding for the printable range.
func decodePDFBytes(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, (len(raw)-2)/2)
		for j := 2; j+1 < len(raw); j += 2 {
			units = append(units, uint16(raw[j])<<8|uint16(raw[j+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, len(raw))
	for j, b := range raw {
		runes[j] = rune(b)
	}
	return string(runes)
}

func cleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune('\n')
			lastSpace = true
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		case unicode.IsPrint(r):
			b.WriteRune(r)
			lastSpace = false
		}
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
