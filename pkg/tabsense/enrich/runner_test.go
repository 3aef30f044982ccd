package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/cognicore/tabsense/pkg/tabsense/csvio"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/store/memstore"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func feedbackTable(t *testing.T, texts ...string) *table.Table {
	t.Helper()
	rows := make([]table.Row, len(texts))
	for i, s := range texts {
		rows[i] = table.Row{table.String(fmt.Sprintf("id%d", i)), table.String(s)}
	}
	tbl, err := table.New([]string{"id", "feedback"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

// lengthScorer is deterministic: longer text is more positive.
var lengthScorer = Func("length", func(ctx context.Context, text string) (Result, error) {
	p := float64(len(text)) / 20
	if p > 1 {
		p = 1
	}
	return Result{Label: Bucket(p), Score: p}, nil
})

func cellStrings(tbl *table.Table) [][]string {
	out := make([][]string, tbl.Len())
	for i := range out {
		for _, v := range tbl.Row(i) {
			out[i] = append(out[i], v.String())
		}
	}
	return out
}

func TestBucket(t *testing.T) {
	cases := map[float64]string{
		0:    LabelNegative,
		0.4:  LabelNegative,
		0.41: LabelNeutral,
		0.5:  LabelNeutral,
		0.59: LabelNeutral,
		0.6:  LabelPositive,
		1:    LabelPositive,
	}
	for p, want := range cases {
		if got := Bucket(p); got != want {
			t.Errorf("Bucket(%v) = %s, want %s", p, got, want)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	for in, want := range map[string]string{"POSITIVE": LabelPositive, " neg ": LabelNegative, "Neutral": LabelNeutral} {
		if got, ok := NormalizeLabel(in); !ok || got != want {
			t.Errorf("NormalizeLabel(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := NormalizeLabel("great"); ok {
		t.Error("unexpected label match")
	}
}

func TestRunAppendsSentimentColumns(t *testing.T) {
	tbl := feedbackTable(t, "Great job", "Needs improvement, a lot of it", "ok")
	r := &Runner{}

	out, report, err := r.Run(context.Background(), tbl, "feedback", lengthScorer, SentimentLayout("", ""))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"id", "feedback", "sentiment", "sentimentScore"}
	if diff := cmp.Diff(want, out.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if out.Len() != tbl.Len() {
		t.Fatalf("row count changed: %d -> %d", tbl.Len(), out.Len())
	}
	if report.Rows != 3 || len(report.Failed) != 0 || report.Succeeded() != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.RunID == "" || report.Enricher != "length" || report.Column != "feedback" {
		t.Fatalf("report metadata missing: %+v", report)
	}
	for i := 0; i < out.Len(); i++ {
		id, _ := out.Cell(i, "id")
		if id.String() != fmt.Sprintf("id%d", i) {
			t.Fatalf("row order changed at %d: %s", i, id)
		}
	}
	if v, _ := out.Cell(1, "sentiment"); v.String() != LabelPositive {
		t.Errorf("row 1 label %s", v)
	}
	if v, _ := out.Cell(2, "sentiment"); v.String() != LabelNegative {
		t.Errorf("row 2 label %s", v)
	}
}

func TestRunRowFailureGetsSentinel(t *testing.T) {
	tbl := feedbackTable(t, "first", "second", "third")
	boom := errors.New("error payload from remote")
	e := Func("flaky", func(ctx context.Context, text string) (Result, error) {
		if text == "second" {
			return Result{}, fmt.Errorf("%w: %v", internalerr.ErrRemoteService, boom)
		}
		return Result{Label: LabelNeutral, Score: 0.5}, nil
	})

	out, report, err := (&Runner{Concurrency: 3}).Run(context.Background(), tbl, "feedback", e, SentimentLayout("", ""))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.Len())
	}
	if len(report.Failed) != 1 || report.Failed[0].Row != 1 {
		t.Fatalf("expected exactly row 1 to fail, got %+v", report.Failed)
	}
	rowErr := report.Failed[0]
	if !errors.Is(rowErr, internalerr.ErrRowEnrichment) || !errors.Is(rowErr, internalerr.ErrRemoteService) {
		t.Fatalf("row error should wrap both causes: %v", rowErr)
	}

	label, _ := out.Cell(1, "sentiment")
	score, _ := out.Cell(1, "sentimentScore")
	if !label.Equal(table.Unknown) || !score.Equal(table.Number(0)) {
		t.Fatalf("row 1 should carry sentinels, got %s/%s", label, score)
	}
	if v, _ := out.Cell(0, "sentiment"); v.String() != LabelNeutral {
		t.Fatalf("row 0 should be classified, got %s", v)
	}

	data, err := json.Marshal(report.Failed)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"row":1`) {
		t.Fatalf("unexpected failure json %s", data)
	}
}

func TestRunNonTextCellFails(t *testing.T) {
	tbl, _ := table.New([]string{"v"}, []table.Row{{table.Number(4)}, {table.String("text")}, {table.Bool(true)}})
	_, report, err := (&Runner{}).Run(context.Background(), tbl, "v", lengthScorer, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 2 || report.Failed[0].Row != 0 || report.Failed[1].Row != 2 {
		t.Fatalf("expected rows 0 and 2 to fail, got %+v", report.Failed)
	}
}

func TestRunPaddedCellFails(t *testing.T) {
	tbl, warnings, err := csvio.ParseString("name,feedback\nAlice,Great job\nBob\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected a padding warning, got %v", warnings)
	}

	var calls atomic.Int32
	counting := Func("counting", func(ctx context.Context, text string) (Result, error) {
		calls.Add(1)
		return lengthScorer.Classify(ctx, text)
	})
	out, report, err := (&Runner{}).Run(context.Background(), tbl, "feedback", counting, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("placeholder cell reached the enricher: %d calls", calls.Load())
	}
	if len(report.Failed) != 1 || report.Failed[0].Row != 1 {
		t.Fatalf("expected row 1 to fail, got %+v", report.Failed)
	}
	if v, _ := out.Cell(1, "sentiment"); !v.Equal(table.Unknown) {
		t.Fatalf("expected Unknown for the padded row, got %s", v)
	}
}

func TestRunKeepsInputColumn(t *testing.T) {
	tbl := feedbackTable(t, "Great job")
	_, _, err := (&Runner{}).Run(context.Background(), tbl, "feedback", lengthScorer, TagLayout([]string{"feedback"}))
	if !errors.Is(err, internalerr.ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
	if v, _ := tbl.Cell(0, "feedback"); v.String() != "Great job" {
		t.Fatalf("input was modified: %s", v)
	}
}

func TestRunPreconditions(t *testing.T) {
	tbl := feedbackTable(t, "x")
	r := &Runner{}
	ctx := context.Background()

	if _, _, err := r.Run(ctx, tbl, "missing", lengthScorer, SentimentLayout("", "")); !errors.Is(err, internalerr.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
	if _, _, err := r.Run(ctx, tbl, "feedback", lengthScorer, TagLayout(nil)); !errors.Is(err, internalerr.ErrEmptySelection) {
		t.Errorf("expected ErrEmptySelection, got %v", err)
	}
	if _, _, err := r.Run(ctx, tbl, "feedback", nil, SentimentLayout("", "")); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	texts := make([]string, 24)
	for i := range texts {
		texts[i] = "row"
	}
	var inFlight, peak int64
	e := Func("slow", func(ctx context.Context, text string) (Result, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return Result{Label: LabelNeutral, Score: 0.5}, nil
	})

	_, report, err := (&Runner{Concurrency: 3}).Run(context.Background(), feedbackTable(t, texts...), "feedback", e, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded() != len(texts) {
		t.Fatalf("expected all rows to succeed: %+v", report)
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds limit 3", peak)
	}
}

func TestRunFailureDoesNotCancelOthers(t *testing.T) {
	var cancelled int64
	e := Func("mixed", func(ctx context.Context, text string) (Result, error) {
		if text == "fail" {
			return Result{}, errors.New("boom")
		}
		time.Sleep(10 * time.Millisecond)
		if ctx.Err() != nil {
			atomic.AddInt64(&cancelled, 1)
		}
		return Result{Label: LabelPositive, Score: 0.9}, nil
	})

	tbl := feedbackTable(t, "fail", "a", "b", "c", "d")
	_, report, err := (&Runner{Concurrency: 5}).Run(context.Background(), tbl, "feedback", e, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || cancelled != 0 {
		t.Fatalf("failed=%d cancelled=%d", len(report.Failed), cancelled)
	}
}

func TestRunPerRowTimeout(t *testing.T) {
	e := Func("stuck", func(ctx context.Context, text string) (Result, error) {
		if text == "hang" {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}
		return Result{Label: LabelNeutral, Score: 0.5}, nil
	})

	tbl := feedbackTable(t, "ok", "hang")
	_, report, err := (&Runner{Timeout: 20 * time.Millisecond}).Run(context.Background(), tbl, "feedback", e, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || !errors.Is(report.Failed[0], context.DeadlineExceeded) {
		t.Fatalf("expected one deadline failure, got %+v", report.Failed)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, report, err := (&Runner{}).Run(ctx, feedbackTable(t, "a", "b"), "feedback", lengthScorer, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 || len(report.Failed) != 2 {
		t.Fatalf("cancelled run should fail every row but keep them: %d rows, %d failed", out.Len(), len(report.Failed))
	}
}

func TestRunCountsModelLoading(t *testing.T) {
	e := Func("loading", func(ctx context.Context, text string) (Result, error) {
		return Result{}, fmt.Errorf("%w: estimated 20s", internalerr.ErrModelLoading)
	})
	_, report, err := (&Runner{}).Run(context.Background(), feedbackTable(t, "a", "b"), "feedback", e, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if report.ModelLoading != 2 {
		t.Fatalf("expected 2 model-loading failures, got %d", report.ModelLoading)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	e := Func("panicky", func(ctx context.Context, text string) (Result, error) {
		if text == "bad" {
			panic("nil map")
		}
		return Result{Label: LabelNeutral, Score: 0.5}, nil
	})
	_, report, err := (&Runner{}).Run(context.Background(), feedbackTable(t, "bad", "good"), "feedback", e, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Row != 0 {
		t.Fatalf("unexpected failures %+v", report.Failed)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	tbl := feedbackTable(t, "Great job", "meh", "Needs improvement")
	r := &Runner{}
	ctx := context.Background()

	once, _, err := r.Run(ctx, tbl, "feedback", lengthScorer, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	again, _, err := r.Run(ctx, tbl, "feedback", lengthScorer, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}
	rerun, _, err := r.Run(ctx, once, "feedback", lengthScorer, SentimentLayout("", ""))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(cellStrings(once), cellStrings(again)); diff != "" {
		t.Fatalf("re-run differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(once.Columns(), rerun.Columns()); diff != "" {
		t.Fatalf("re-run on enriched table duplicated columns:\n%s", diff)
	}
	if diff := cmp.Diff(cellStrings(once), cellStrings(rerun)); diff != "" {
		t.Fatalf("re-run on enriched table differs:\n%s", diff)
	}
}

func TestTagLayout(t *testing.T) {
	tags := []string{"Pricing", "Support"}
	e := Func("tagger", func(ctx context.Context, text string) (Result, error) {
		if text == "partial" {
			return Result{Label: "Pricing", Tags: map[string]bool{"Pricing": true}}, nil
		}
		return Result{Label: "Support", Score: 0.5, Tags: map[string]bool{"Pricing": false, "Support": true}}, nil
	})

	out, report, err := (&Runner{}).Run(context.Background(), feedbackTable(t, "full", "partial"), "feedback", e, TagLayout(tags))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"id", "feedback", "Pricing", "Support"}, out.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if v, _ := out.Cell(0, "Support"); !v.Equal(table.Bool(true)) {
		t.Errorf("row 0 Support = %s", v)
	}
	if len(report.Failed) != 1 || !errors.Is(report.Failed[0], internalerr.ErrResponseParse) {
		t.Fatalf("incomplete tag verdict should fail the row: %+v", report.Failed)
	}
	for _, tag := range tags {
		if v, _ := out.Cell(1, tag); !v.Equal(table.Unknown) {
			t.Errorf("row 1 %s = %s, want Unknown", tag, v)
		}
	}
}

func TestSentimentLayoutRejectsBadScores(t *testing.T) {
	l := SentimentLayout("label", "score")
	if _, err := l.Cells(Result{Label: LabelPositive, Score: 1.5}); !errors.Is(err, internalerr.ErrResponseParse) {
		t.Errorf("expected ErrResponseParse, got %v", err)
	}
	if _, err := l.Cells(Result{Score: 0.5}); !errors.Is(err, internalerr.ErrResponseParse) {
		t.Errorf("expected ErrResponseParse, got %v", err)
	}
	if diff := cmp.Diff([]string{"label", "score"}, l.Columns()); diff != "" {
		t.Error(diff)
	}
}

func TestCached(t *testing.T) {
	var calls int64
	e := Func("counting", func(ctx context.Context, text string) (Result, error) {
		atomic.AddInt64(&calls, 1)
		if text == "fail" {
			return Result{}, errors.New("remote down")
		}
		return Result{Label: LabelPositive, Score: 0.8, Tags: map[string]bool{"x": true}}, nil
	})
	st := memstore.New()
	c := Cached(e, st)
	ctx := context.Background()

	if c.Name() != "counting" {
		t.Fatalf("Name() = %q", c.Name())
	}
	for i := 0; i < 3; i++ {
		res, err := c.Classify(ctx, "hello")
		if err != nil {
			t.Fatal(err)
		}
		if res.Label != LabelPositive || res.Score != 0.8 || !res.Tags["x"] {
			t.Fatalf("unexpected result %+v", res)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Classify(ctx, "fail"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if calls != 3 {
		t.Fatalf("failures must not be cached: %d calls", calls)
	}

	if _, found, _ := st.GetResult(ctx, CacheKey("counting", "hello")); !found {
		t.Fatal("result not stored under CacheKey")
	}
}
