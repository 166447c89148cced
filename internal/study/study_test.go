package study_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/nca-cli/internal/parser"
	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/report"
	"github.com/KaramelBytes/nca-cli/internal/study"
)

const sampleCSV = "ID,TIME,DOSE,CONC\n" +
	"1,0,100,10\n1,1,0,5\n1,2,0,2.5\n" +
	"2,0,100,20\n2,1,0,10\n2,2,0,5\n"

func TestStudyDatasetAndRun(t *testing.T) {
	tdir := t.TempDir()
	src := filepath.Join(tdir, "pk.csv")
	if err := os.WriteFile(src, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	s := study.New("trial", "phase 1", filepath.Join(tdir, "studies", "trial"))
	ref, ds, err := s.AddDataset(src, "  day 1  ", parser.Options{})
	if err != nil {
		t.Fatalf("add dataset: %v", err)
	}
	if ref.Subjects != 2 || ref.Observations != 6 || ref.Description != "day 1" {
		t.Fatalf("unexpected ref %+v", ref)
	}

	eng := pk.NewEngine(ds, pk.Options{}, zerolog.Nop())
	r, err := report.Build(context.Background(), eng, ref.Name, report.Params{Window: pk.Window{Start: 0, End: 2}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	run, err := s.AddRun(ref.ID, r, report.FormatMarkdown)
	if err != nil {
		t.Fatalf("add run: %v", err)
	}
	if filepath.Ext(run.File) != ".md" {
		t.Fatalf("run file = %s", run.File)
	}
	if _, err := os.Stat(filepath.Join(s.RootDir(), run.File)); err != nil {
		t.Fatalf("run file missing: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := study.Load(s.RootDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != "trial" || len(loaded.Datasets) != 1 || len(loaded.Runs) != 1 {
		t.Fatalf("loaded study = %+v", loaded)
	}
	back, err := loaded.LoadDataset(ref.ID[:8])
	if err != nil {
		t.Fatalf("load dataset by prefix: %v", err)
	}
	if back.Len() != 6 || back.Profile(2)[0].Conc != 20 {
		t.Fatalf("stored dataset differs")
	}
	if _, err := loaded.FindDataset("pk.csv"); err != nil {
		t.Fatalf("find by name: %v", err)
	}

	names, err := study.List(filepath.Join(tdir, "studies"))
	if err != nil || len(names) != 1 || names[0] != "trial" {
		t.Fatalf("list = %v, %v", names, err)
	}
}

func TestStudyErrors(t *testing.T) {
	tdir := t.TempDir()
	if _, err := study.Load(filepath.Join(tdir, "missing")); !errors.Is(err, study.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	s := study.New("x", "", tdir)
	if _, err := s.FindDataset("nope"); !errors.Is(err, study.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	bad := filepath.Join(tdir, "bad.csv")
	if err := os.WriteFile(bad, []byte("ID,TIME,DOSE,CONC\n1,0,1,-2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.AddDataset(bad, "", parser.Options{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if names, err := study.List(filepath.Join(tdir, "none")); err != nil || names != nil {
		t.Fatalf("list of missing dir = %v, %v", names, err)
	}
}
