// Command perf-regression compares two `go test -bench` outputs and fails when
// a tracked benchmark's median regresses past the threshold.
//
//	go test -run '^$' -bench . -count 5 ./... > new.txt
//	perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// defaultTracked covers the request hot paths: limiter checks, TOTP
// verification and the two middlewares.
var defaultTracked = map[string][]string{
	"BenchmarkSlidingWindowCheck":            {"ns/op", "allocs/op"},
	"BenchmarkSlidingWindowCheckParallel":    {"ns/op"},
	"BenchmarkVerifyCode":                    {"ns/op", "allocs/op"},
	"BenchmarkGatewayAllowed":                {"ns/op", "allocs/op"},
	"BenchmarkRequireClientKey":              {"ns/op", "allocs/op"},
	"BenchmarkMetricsGatewayRequestParallel": {"ns/op"},
}

type sampleSet map[string]map[string][]float64

type comparison struct {
	Benchmark string
	Metric    string
	Baseline  float64
	Candidate float64
	Delta     float64
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
		track         string
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.StringVar(&track, "track", "", "override tracked set: Name=unit,unit;Name=unit")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}
	tracked := defaultTracked
	if track != "" {
		var err error
		if tracked, err = parseTrack(track); err != nil {
			fmt.Fprintf(os.Stderr, "-track: %v\n", err)
			os.Exit(2)
		}
	}

	baseline, err := parseBenchmarkFile(baselinePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(candidatePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	results, failures := compare(baseline, candidate, tracked, threshold)
	fmt.Println("perf regression check:")
	fmt.Println("benchmark metric baseline candidate delta")
	for _, r := range results {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.Benchmark, r.Metric, r.Baseline, r.Candidate, r.Delta*100)
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", failure)
		}
		os.Exit(1)
	}
}

// compare returns one row per tracked metric, sorted by name, plus the
// failures: missing samples or a median regression above threshold.
func compare(baseline, candidate sampleSet, tracked map[string][]string, threshold float64) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		results  []comparison
		failures []string
	)
	for _, benchmark := range names {
		for _, metric := range tracked[benchmark] {
			baseSamples := baseline[benchmark][metric]
			candidateSamples := candidate[benchmark][metric]
			if len(baseSamples) == 0 || len(candidateSamples) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", benchmark, metric))
				continue
			}

			baseMedian := median(baseSamples)
			candidateMedian := median(candidateSamples)
			if baseMedian <= 0 {
				// zero-alloc benchmarks: any allocation is a regression
				if candidateMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.3f", benchmark, metric, candidateMedian))
				}
				results = append(results, comparison{benchmark, metric, baseMedian, candidateMedian, 0})
				continue
			}

			delta := (candidateMedian - baseMedian) / baseMedian
			results = append(results, comparison{benchmark, metric, baseMedian, candidateMedian, delta})
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", benchmark, metric, delta*100, threshold*100))
			}
		}
	}
	return results, failures
}

func parseTrack(raw string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, units, ok := strings.Cut(entry, "=")
		if !ok || name == "" || units == "" {
			return nil, fmt.Errorf("entry %q is not Name=unit[,unit]", entry)
		}
		for _, u := range strings.Split(units, ",") {
			if u = strings.TrimSpace(u); u != "" {
				out[strings.TrimSpace(name)] = append(out[strings.TrimSpace(name)], u)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no benchmarks named")
	}
	return out, nil
}

func parseBenchmarkFile(path string, tracked map[string][]string) (sampleSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseBenchmarks(file, tracked)
}

func parseBenchmarks(r io.Reader, tracked map[string][]string) (sampleSet, error) {
	samples := sampleSet{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeBenchmarkName(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}

		if _, ok := samples[name]; !ok {
			samples[name] = map[string][]float64{}
		}

		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			unit := fields[i+1]
			samples[name][unit] = append(samples[name][unit], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// normalizeBenchmarkName drops the -GOMAXPROCS suffix.
func normalizeBenchmarkName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	copied := make([]float64, len(values))
	copy(copied, values)
	sort.Float64s(copied)

	mid := len(copied) / 2
	if len(copied)%2 == 1 {
		return copied[mid]
	}
	return (copied[mid-1] + copied[mid]) / 2
}
