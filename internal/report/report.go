// Package report renders benchmark and accuracy results as tables or JSON.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/samcharles93/tokquant/internal/bench"
	"github.com/samcharles93/tokquant/internal/verify"
	"github.com/samcharles93/tokquant/pkg/quant"
)

// Host prints the machine description.
func Host(out io.Writer, h bench.Host) {
	fmt.Fprintln(out, "=== Host ===")
	fmt.Fprintf(out, "CPU:        %s\n", h.CPU)
	fmt.Fprintf(out, "Arch:       %s\n", h.Arch)
	fmt.Fprintf(out, "Cores:      %d\n", h.Cores)
	fmt.Fprintf(out, "GOMAXPROCS: %d\n", h.GOMAXPROCS)
	fmt.Fprintf(out, "Memory:     %.1f GB\n", h.MemoryGB)
	if len(h.Features) > 0 {
		fmt.Fprintf(out, "Features:   %v\n", h.Features)
	}
	fmt.Fprintln(out)
}

// Bench prints benchmark results, one row per combination.
func Bench(out io.Writer, results []bench.Result) {
	fmt.Fprintln(out, "=== Results ===")
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Input", "Target", "Tokens", "Hidden", "Mean", "Min", "Melem/s", "GB/s")
	for _, r := range results {
		tbl.Append([]string{
			r.Input,
			r.Target,
			strconv.Itoa(r.Tokens),
			strconv.Itoa(r.Hidden),
			r.Mean.Round(time.Microsecond).String(),
			r.Min.Round(time.Microsecond).String(),
			fmt.Sprintf("%.1f", r.ElemsPS/1e6),
			fmt.Sprintf("%.2f", r.GBps),
		})
	}
	_ = tbl.Render()
}

// Compare prints accuracy results followed by a one-line summary.
func Compare(out io.Writer, results []verify.Result) {
	fmt.Fprintln(out, "=== Accuracy ===")
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Status", "Input", "Target", "Tokens", "Hidden", "Code err", "Scale err", "Bound misses", "Time")
	for _, r := range results {
		status := "ok"
		if !r.Passed {
			status = "FAIL"
		}
		tbl.Append([]string{
			status,
			r.Input.String(),
			r.Target.String(),
			strconv.Itoa(r.Tokens),
			strconv.Itoa(r.Hidden),
			fmt.Sprintf("%.2e", r.CodeErr),
			fmt.Sprintf("%.2e", r.ScaleErr),
			strconv.Itoa(r.Violations),
			r.Elapsed.Round(time.Microsecond).String(),
		})
	}
	_ = tbl.Render()

	passed, failed, worstCode, worstScale := verify.Summary(results)
	fmt.Fprintf(out, "\n%d passed, %d failed (worst code err %.2e, worst scale err %.2e)\n",
		passed, failed, worstCode, worstScale)
}

// Formats prints the supported (input, target) routes.
func Formats(out io.Writer, routes [][2]quant.DType) {
	tbl := tablewriter.NewWriter(out)
	tbl.Header("Input", "Target", "Qmax")
	for _, r := range routes {
		qmax, _ := quant.QMax(r[1])
		tbl.Append([]string{r[0].String(), r[1].String(), strconv.FormatFloat(float64(qmax), 'g', -1, 32)})
	}
	_ = tbl.Render()
}

// JSON writes v indented.
func JSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CompareJSON is the JSON shape of an accuracy run.
type CompareJSON struct {
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Results []compareCase `json:"results"`
}

type compareCase struct {
	Input      string  `json:"input"`
	Target     string  `json:"target"`
	Tokens     int     `json:"tokens"`
	Hidden     int     `json:"hidden"`
	CodeErr    float64 `json:"code_err"`
	ScaleErr   float64 `json:"scale_err"`
	Violations int     `json:"violations"`
	Passed     bool    `json:"passed"`
}

func NewCompareJSON(results []verify.Result) CompareJSON {
	passed, failed, _, _ := verify.Summary(results)
	out := CompareJSON{Passed: passed, Failed: failed, Results: make([]compareCase, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, compareCase{
			Input:      r.Input.String(),
			Target:     r.Target.String(),
			Tokens:     r.Tokens,
			Hidden:     r.Hidden,
			CodeErr:    r.CodeErr,
			ScaleErr:   r.ScaleErr,
			Violations: r.Violations,
			Passed:     r.Passed,
		})
	}
	return out
}

// BenchJSON is the JSON shape of a benchmark run.
type BenchJSON struct {
	Host    bench.Host     `json:"host"`
	Results []bench.Result `json:"results"`
}
