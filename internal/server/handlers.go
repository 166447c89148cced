package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KaramelBytes/nca-cli/internal/config"
	"github.com/KaramelBytes/nca-cli/internal/dataset"
	"github.com/KaramelBytes/nca-cli/internal/metrics"
	"github.com/KaramelBytes/nca-cli/internal/parser"
	"github.com/KaramelBytes/nca-cli/internal/pk"
	"github.com/KaramelBytes/nca-cli/internal/report"
	"github.com/KaramelBytes/nca-cli/internal/summary"
	"github.com/KaramelBytes/nca-cli/internal/synth"
)

// GenerateRequest is the body of POST /api/v1/generate.
type GenerateRequest struct {
	Subjects int       `json:"subjects"`
	Times    []float64 `json:"times"`
	Dose     []float64 `json:"dose"`
	HalfLife float64   `json:"half_life"`
	Seed     *uint64   `json:"seed,omitempty"`
}

// readDataset accepts either a multipart upload in field "file" or a raw
// delimited body.
func readDataset(c echo.Context) (*dataset.Dataset, string, error) {
	var (
		r    io.Reader
		name = "upload.csv"
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("open upload: %v", err))
		}
		defer f.Close()
		r, name = f, fh.Filename
	} else {
		r = c.Request().Body
	}
	opt := parser.Options{}
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		opt.Delimiter = '\t'
	}
	if d := c.QueryParam("delimiter"); d != "" {
		opt.Delimiter = []rune(d)[0]
	}
	tab, err := parser.ReadCSV(r, opt)
	if err != nil {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tab.Name = name
	ds, err := dataset.FromTable(tab)
	if err != nil {
		return nil, "", err
	}
	return ds, name, nil
}

// httpError maps core errors onto status codes.
func httpError(err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, dataset.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pk.ErrPrecondition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (s *Server) handleSummary(c echo.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveAnalysis("summary", time.Since(start), err) }()

	ds, _, err := readDataset(c)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"rows": report.TimeRowDocs(summary.ByTime(ds))})
}

func (s *Server) handleProfiles(c echo.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveAnalysis("profiles", time.Since(start), err) }()

	ds, _, err := readDataset(c)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report.NewPlotDoc(report.NewPlotData(ds)))
}

func (s *Server) handleNCA(c echo.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveAnalysis("nca", time.Since(start), err) }()

	params, opts, err := s.ncaParams(c)
	if err != nil {
		return httpError(err)
	}
	ds, name, err := readDataset(c)
	if err != nil {
		return httpError(err)
	}
	if !c.QueryParams().Has("end") {
		if times := ds.Times(); len(times) > 0 {
			params.Window.End = times[len(times)-1]
		}
	}
	eng := pk.NewEngine(ds, opts, s.log.With().Str("request_id", fmt.Sprint(c.Get("request_id"))).Logger())
	r, err := report.Build(c.Request().Context(), eng, name, params)
	if err != nil {
		return httpError(err)
	}
	for _, sec := range r.Sections {
		metrics.ObserveExclusions(sec.Label, len(sec.Excluded))
	}

	var buf strings.Builder
	sink, _ := report.NewSink(report.FormatJSON, &buf)
	if err := r.Stream(sink); err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, []byte(buf.String()))
}

// ncaParams reads start, end, terminal_times, stats and strict from the query.
func (s *Server) ncaParams(c echo.Context) (report.Params, pk.Options, error) {
	p := report.Params{Stats: s.cfg.DefaultStats}
	opts := s.cfg.Analysis
	q := c.QueryParams()
	var err error
	if v := q.Get("start"); v != "" {
		if p.Window.Start, err = strconv.ParseFloat(v, 64); err != nil {
			return p, opts, &dataset.ValidationError{Field: "start", Msg: err.Error()}
		}
	}
	if v := q.Get("end"); v != "" {
		if p.Window.End, err = strconv.ParseFloat(v, 64); err != nil {
			return p, opts, &dataset.ValidationError{Field: "end", Msg: err.Error()}
		}
	}
	if v := q.Get("terminal_times"); v != "" {
		if p.TerminalTimes, err = config.ParseFloats(v); err != nil {
			return p, opts, &dataset.ValidationError{Field: "terminal_times", Msg: err.Error()}
		}
	}
	if v := q.Get("stats"); v != "" {
		if p.Stats, err = summary.ParseStatistics(config.SplitList(v)); err != nil {
			return p, opts, err
		}
	}
	if v := q.Get("strict"); v != "" {
		if opts.Strict, err = strconv.ParseBool(v); err != nil {
			return p, opts, &dataset.ValidationError{Field: "strict", Msg: err.Error()}
		}
	}
	return p, opts, nil
}

func (s *Server) handleGenerate(c echo.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveAnalysis("generate", time.Since(start), err) }()

	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	seed := uint64(time.Now().UnixNano())
	if req.Seed != nil {
		seed = *req.Seed
	}
	res, err := synth.Generate(synth.Config{
		Subjects: req.Subjects,
		Times:    req.Times,
		Doses:    req.Dose,
		HalfLife: req.HalfLife,
		MaxRows:  s.cfg.MaxGenerateRows,
	}, synth.NewRand(seed))
	if err != nil {
		return httpError(err)
	}
	metrics.ObserveGenerated(len(res.Rows))

	if strings.EqualFold(c.QueryParam("format"), "csv") {
		var buf strings.Builder
		if err := synth.WriteCSV(&buf, res.Rows); err != nil {
			return httpError(err)
		}
		return c.Blob(http.StatusOK, "text/csv; charset=UTF-8", []byte(buf.String()))
	}
	return c.JSON(http.StatusOK, res)
}
