package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Table is a raw, untyped tabular dataset: a header row plus string cells.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string

	opt Options
}

// Options controls how files are read into a Table.
type Options struct {
	// Delimiter for CSV. If 0, picked from the file extension (',' or '\t').
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// XLSX sheet selection; SheetIndex is 1-based.
	SheetName  string
	SheetIndex int
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
}

// Parser reads one file format into a Table.
type Parser interface {
	CanParse(filename string) bool
	Parse(path string, opt Options) (*Table, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported dataset format")

// ParseFile selects a parser based on filename and returns the raw table.
func ParseFile(path string, opt Options) (*Table, error) {
	for _, p := range registry {
		if p.CanParse(path) {
			t, err := p.Parse(path, opt)
			if err != nil {
				return nil, err
			}
			if t.Name == "" {
				t.Name = filepath.Base(path)
			}
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

func init() {
	Register(csvParser{})
	Register(xlsxParser{})
}

// Column returns the index of the first header matching any of the names,
// compared case-insensitively, or -1.
func (t *Table) Column(names ...string) int {
	for i, h := range t.Header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == strings.ToLower(n) {
				return i
			}
		}
	}
	return -1
}

// Cell returns the trimmed cell at row/col, or "" when the row is short.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// ParseNumber parses a numeric cell using the locale options the table was read with.
func (t *Table) ParseNumber(s string) (float64, bool) {
	return ParseNumber(s, t.opt)
}

// ParseNumber parses s honouring decimal and thousands separators. With no
// separators configured it auto-detects: the rightmost of ',' or '.' is the
// decimal mark when both appear.
func ParseNumber(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
