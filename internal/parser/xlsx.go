package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type xlsxParser struct{}

func (xlsxParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

// Parse reads the selected sheet of a workbook. With no sheet name and a
// non-positive index the first sheet is used.
func (xlsxParser) Parse(p string, opt Options) (*Table, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	target, err := resolveSheet(zr, opt.SheetName, opt.SheetIndex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
	}
	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))
	rr := newSheetRowReader(readZipFile(zr, target), shared)

	t := &Table{Name: filepath.Base(p), opt: opt}
	header, ok := rr.Next()
	if !ok {
		return t, nil
	}
	t.Header = trimAll(header)
	for {
		row, ok := rr.Next()
		if !ok {
			break
		}
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			break
		}
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, padRow(row, len(t.Header)))
	}
	return t, nil
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

func resolveSheet(zr *zip.Reader, name string, index int) (string, error) {
	sheets := parseWorkbook(readZipFile(zr, "xl/workbook.xml"))
	rels := parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels"))
	if name != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, name) {
				if rel, ok := rels[s.RID]; ok {
					return normalizeRelPath(rel), nil
				}
			}
		}
		names := make([]string, len(sheets))
		for i, s := range sheets {
			names[i] = s.Name
		}
		return "", fmt.Errorf("sheet %q not found; available sheets: %s", name, strings.Join(names, ", "))
	}
	if index <= 0 {
		index = 1
	}
	for _, s := range sheets {
		if s.SheetID == index {
			if rel, ok := rels[s.RID]; ok {
				return normalizeRelPath(rel), nil
			}
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", index)), nil
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			return b
		}
	}
	return nil
}

// normalizeRelPath maps a relationship target to its zip entry name.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}

// walkXML feeds every token of data to fn until EOF, a decode error, or fn returns false.
func walkXML(data []byte, fn func(xml.Token) bool) {
	if len(data) == 0 {
		return
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		if !fn(tok) {
			return
		}
	}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func parseWorkbook(data []byte) []wbSheet {
	var sheets []wbSheet
	walkXML(data, func(tok xml.Token) bool {
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			sheets = append(sheets, wbSheet{
				Name:    attr(se, "name"),
				SheetID: atoiSafe(attr(se, "sheetId")),
				RID:     attr(se, "id"),
			})
		}
		return true
	})
	return sheets
}

func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	walkXML(data, func(tok xml.Token) bool {
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			id, target := attr(se, "Id"), attr(se, "Target")
			if id != "" && target != "" {
				out[id] = target
			}
		}
		return true
	})
	return out
}

func parseSharedStrings(data []byte) []string {
	var out []string
	var buf strings.Builder
	inT := false
	walkXML(data, func(tok xml.Token) bool {
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
		return true
	})
	return out
}

// sheetRowReader streams rows of a worksheet as string cells.
type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

func (r *sheetRowReader) Next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				inRow = true
				row = nil
			}
			if inRow && se.Name.Local == "c" {
				col := colIndexFromRef(attr(se, "r"))
				if col < 0 {
					col = len(row)
				}
				val, err := r.cellValue(attr(se, "t"))
				if err != nil {
					return nil, false
				}
				if len(row) <= col {
					tmp := make([]string, col+1)
					copy(tmp, row)
					row = tmp
				}
				row[col] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" && inRow {
				return row, true
			}
		}
	}
}

// cellValue consumes tokens up to the closing </c> and returns the text of
// its <v> or inline <t>, resolving shared-string references.
func (r *sheetRowReader) cellValue(typ string) (string, error) {
	var sb strings.Builder
	capture := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				capture = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				val := sb.String()
				if typ == "s" {
					idx := atoiSafe(val)
					if idx >= 0 && idx < len(r.shared) {
						return r.shared[idx], nil
					}
					return "", nil
				}
				return val, nil
			}
		case xml.CharData:
			if capture {
				sb.Write(se)
			}
		}
	}
}

// colIndexFromRef converts a cell reference like "C12" to a 0-based column index.
func colIndexFromRef(ref string) int {
	idx := 0
	n := 0
	for n < len(ref) {
		c := ref[n]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
		n++
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
