// Package report summarizes sample sequences into latency tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Summary holds the descriptive statistics of one sample sequence, in
// nanoseconds.
type Summary struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	CILower float64 `json:"ci95_lower"`
	CIUpper float64 `json:"ci95_upper"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
}

// Summarize computes the statistics of samples after subtracting offsetNs
// from each of them. The confidence interval is the two-sided 95% Student-t
// interval of the mean; percentiles interpolate linearly between the two
// closest ranks.
func Summarize(name string, samples []float64, offsetNs float64) (Summary, error) {
	n := len(samples)
	if n == 0 {
		return Summary{}, fmt.Errorf("%s: no samples", name)
	}

	sorted := make([]float64, n)
	for i, s := range samples {
		sorted[i] = s - offsetNs
	}

	slices.Sort(sorted)

	s := Summary{
		Name:  name,
		Count: n,
		Mean:  stat.Mean(sorted, nil),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}

	s.Median = s.P50

	s.CILower, s.CIUpper = s.Mean, s.Mean

	if n > 1 {
		s.StdDev = stat.StdDev(sorted, nil)

		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(0.975)
		half := t * s.StdDev / math.Sqrt(float64(n))
		s.CILower, s.CIUpper = s.Mean-half, s.Mean+half
	}

	return s, nil
}

// percentile interpolates at rank (n-1)*p of sorted. gonum's LinInterp
// places ranks at i/n and so disagrees with the usual definition.
func percentile(sorted []float64, p float64) float64 {
	pos := float64(len(sorted)-1) * p
	lo := int(math.Floor(pos))

	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}

// Generate writes a markdown table of summaries to w.
func Generate(w io.Writer, summaries []Summary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Latency Summary")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Primitive | Count | Mean | Median | Std | Min | Max "+
		"| 95% CI | p95 | p99 |")
	fmt.Fprintln(w, "|-----------|-------|------|--------|-----|-----|-----"+
		"|--------|-----|-----|")

	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %s | [%s, %s] | %s | %s |\n",
			s.Name,
			s.Count,
			formatNs(s.Mean),
			formatNs(s.Median),
			formatNs(s.StdDev),
			formatNs(s.Min),
			formatNs(s.Max),
			formatNs(s.CILower),
			formatNs(s.CIUpper),
			formatNs(s.P95),
			formatNs(s.P99),
		)
	}

	return nil
}

// GenerateJSON writes summaries as JSON to w.
func GenerateJSON(w io.Writer, summaries []Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(summaries)
}

func formatNs(ns float64) string {
	abs := math.Abs(ns)

	switch {
	case abs < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case abs < 1e6:
		return fmt.Sprintf("%.2fus", ns/1e3)
	case abs < 1e9:
		return fmt.Sprintf("%.2fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
