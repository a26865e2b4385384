package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tokquant/internal/bench"
	"github.com/samcharles93/tokquant/internal/verify"
	"github.com/samcharles93/tokquant/pkg/quant"
)

func TestBenchTable(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Bench(&buf, []bench.Result{{
		Tokens: 1024, Hidden: 3200, Input: "BF16", Target: "F8_E4M3",
		Iters: 10, Mean: 1500 * time.Microsecond, Min: time.Millisecond,
		ElemsPS: 2.5e9, GBps: 7.75,
	}})
	out := buf.String()
	for _, want := range []string{"F8_E4M3", "3200", "1.5ms", "2500.0", "7.75"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCompareTable(t *testing.T) {
	t.Parallel()
	results := []verify.Result{
		{Case: verify.Case{Tokens: 2, Hidden: 3, Input: quant.DTypeBF16, Target: quant.DTypeI8}, CodeErr: 0.001, Passed: true},
		{Case: verify.Case{Tokens: 2, Hidden: 5, Input: quant.DTypeF16, Target: quant.DTypeF8E4M3}, CodeErr: 0.5, Violations: 3},
	}
	var buf bytes.Buffer
	Compare(&buf, results)
	out := buf.String()
	if !strings.Contains(out, "FAIL") {
		t.Fatalf("expected FAIL row:\n%s", out)
	}
	if !strings.Contains(out, "1 passed, 1 failed") {
		t.Fatalf("expected summary line:\n%s", out)
	}
}

func TestFormatsTable(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Formats(&buf, quant.SupportedRoutes())
	out := buf.String()
	if !strings.Contains(out, "448") || !strings.Contains(out, "127") {
		t.Fatalf("expected qmax values in output:\n%s", out)
	}
}

func TestCompareJSON(t *testing.T) {
	t.Parallel()
	results := []verify.Result{
		{Case: verify.Case{Tokens: 1, Hidden: 4, Input: quant.DTypeBF16, Target: quant.DTypeI8}, Passed: true},
	}
	var buf bytes.Buffer
	if err := JSON(&buf, NewCompareJSON(results)); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var got struct {
		Passed  int `json:"passed"`
		Results []struct {
			Input  string `json:"input"`
			Target string `json:"target"`
		} `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Passed != 1 || len(got.Results) != 1 || got.Results[0].Target != "I8" {
		t.Fatalf("unexpected json %s", buf.String())
	}
}
