package parser

import (
	"archive/zip"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFileCSV(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "pk.csv")
	content := "ID,TIME,DOSE,CONC\n" +
		"1,0,100,98.5\n" +
		"1,1,0,80.1\n" +
		"\n" +
		"2,0,100,101\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tab, err := ParseFile(p, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tab.Name != "pk.csv" {
		t.Fatalf("name = %q", tab.Name)
	}
	if len(tab.Header) != 4 || tab.Header[3] != "CONC" {
		t.Fatalf("header = %#v", tab.Header)
	}
	if len(tab.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (blank line skipped)", len(tab.Rows))
	}
	if got := tab.Cell(1, tab.Column("conc")); got != "80.1" {
		t.Fatalf("cell = %q", got)
	}
	if tab.Column("missing") != -1 {
		t.Fatalf("expected -1 for unknown column")
	}
}

func TestParseFileTSVAndMaxRows(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "pk.tsv")
	content := "ID\tTIME\tDOSE\tCONC\n1\t0\t100\t10\n1\t1\t0\t5\n1\t2\t0\t2.5\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tab, err := ParseFile(p, Options{MaxRows: 2})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tab.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tab.Rows))
	}
	if tab.Cell(0, 3) != "10" {
		t.Fatalf("unexpected first conc %q", tab.Cell(0, 3))
	}
}

func TestReadCSVSemicolonLocale(t *testing.T) {
	in := "ID;TIME;DOSE;CONC\n1;0;1.000,5;10,25\n"
	tab, err := ReadCSV(strings.NewReader(in), Options{Delimiter: ';', DecimalSeparator: ',', ThousandsSeparator: '.'})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	dose, ok := tab.ParseNumber(tab.Cell(0, 2))
	if !ok || dose != 1000.5 {
		t.Fatalf("dose = %v ok=%v", dose, ok)
	}
	conc, ok := tab.ParseNumber(tab.Cell(0, 3))
	if !ok || conc != 10.25 {
		t.Fatalf("conc = %v ok=%v", conc, ok)
	}
}

func TestParseNumberAutoDetect(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"1,234.5", 1234.5, true},
		{"1.234,5", 1234.5, true},
		{"0,75", 0.75, true},
		{"1e-3", 0.001, true},
		{"-4", -4, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in, Options{})
		if ok != c.ok || (ok && math.Abs(got-c.want) > 1e-12) {
			t.Errorf("ParseNumber(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestParseFileUnsupported(t *testing.T) {
	_, err := ParseFile("data.json", Options{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestParseFileXLSX(t *testing.T) {
	p := writeWorkbook(t)

	byName, err := ParseFile(p, Options{SheetName: "Data"})
	if err != nil {
		t.Fatalf("parse by name: %v", err)
	}
	assertWorkbookTable(t, byName)

	byIndex, err := ParseFile(p, Options{SheetIndex: 2})
	if err != nil {
		t.Fatalf("parse by index: %v", err)
	}
	assertWorkbookTable(t, byIndex)

	first, err := ParseFile(p, Options{})
	if err != nil {
		t.Fatalf("parse default: %v", err)
	}
	if len(first.Header) != 1 || first.Header[0] != "notes" {
		t.Fatalf("default sheet header = %#v", first.Header)
	}

	_, err = ParseFile(p, Options{SheetName: "Nope"})
	if err == nil || !strings.Contains(err.Error(), "available sheets: Readme, Data") {
		t.Fatalf("expected missing sheet error, got %v", err)
	}
}

func TestNormalizeRelPath(t *testing.T) {
	cases := map[string]string{
		"/xl/worksheets/sheet1.xml": "xl/worksheets/sheet1.xml",
		"xl/worksheets/sheet1.xml":  "xl/worksheets/sheet1.xml",
		"worksheets/sheet2.xml":     "xl/worksheets/sheet2.xml",
		"/worksheets/sheet2.xml":    "xl/worksheets/sheet2.xml",
	}
	for in, want := range cases {
		if got := normalizeRelPath(in); got != want {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestColIndexFromRef(t *testing.T) {
	cases := map[string]int{"A1": 0, "C12": 2, "Z3": 25, "AA10": 26, "ab2": 27}
	for in, want := range cases {
		if got := colIndexFromRef(in); got != want {
			t.Errorf("colIndexFromRef(%q) = %d, want %d", in, got, want)
		}
	}
}

func assertWorkbookTable(t *testing.T, tab *Table) {
	t.Helper()
	want := []string{"ID", "TIME", "DOSE", "CONC"}
	if strings.Join(tab.Header, ",") != strings.Join(want, ",") {
		t.Fatalf("header = %#v", tab.Header)
	}
	if len(tab.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tab.Rows))
	}
	if got := strings.Join(tab.Rows[1], ","); got != "1,1,0,5.5" {
		t.Fatalf("second row = %q", got)
	}
}

// writeWorkbook builds a two-sheet workbook: "Readme" (sheet1) and "Data" (sheet2).
func writeWorkbook(t *testing.T) string {
	t.Helper()
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Readme" sheetId="1" r:id="rId1"/><sheet name="Data" sheetId="2" r:id="rId2"/></sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="/xl/worksheets/sheet2.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>ID</t></si><si><t>TIME</t></si><si><t>DOSE</t></si><si><t>CONC</t></si><si><t>notes</t></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>4</v></c></row>
<row r="2"><c r="A2" t="inlineStr"><is><t>generated</t></is></c></row>
</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="s"><v>2</v></c><c r="D1" t="s"><v>3</v></c></row>
<row r="2"><c r="A2"><v>1</v></c><c r="B2"><v>0</v></c><c r="C2"><v>100</v></c><c r="D2"><v>10</v></c></row>
<row r="3"><c r="A3"><v>1</v></c><c r="B3"><v>1</v></c><c r="C3"><v>0</v></c><c r="D3"><v>5.5</v></c></row>
</sheetData></worksheet>`,
	}
	p := filepath.Join(t.TempDir(), "pk.xlsx")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return p
}
