// Package delivery renders human-readable batch results: the completion
// summary text and the in-flight progress line. It formats, it does not
// send; transports live behind the orchestrator's Deliverer.
package delivery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"genforge/imagegen"
)

// SummaryInput collects everything the completion summary reports.
type SummaryInput struct {
	// Result is the finished batch.
	Result imagegen.BatchResult

	// Refunded is the number of credits returned for failed images.
	Refunded int

	// CreditsRemaining is the caller's balance after the batch.
	// Negative hides the balance line.
	CreditsRemaining int
}

// BuildSummary renders the multi-line completion summary.
func BuildSummary(in SummaryInput) string {
	total := in.Result.TotalJobs()
	succeeded := len(in.Result.Successes)

	var b strings.Builder
	fmt.Fprintf(&b, "Generated %d/%d images in %s", succeeded, total, formatDuration(in.Result.TotalElapsed))
	if succeeded > 0 {
		avg := in.Result.TotalElapsed / time.Duration(succeeded)
		fmt.Fprintf(&b, " (avg %s per image)", formatDuration(avg))
	}
	b.WriteString("\n")

	if failed := len(in.Result.Failures); failed > 0 {
		fmt.Fprintf(&b, "%d failed", failed)
		if in.Refunded > 0 {
			fmt.Fprintf(&b, "; %d %s refunded", in.Refunded, pluralCredits(in.Refunded))
		}
		b.WriteString("\n")
		counts := failuresByKind(in.Result.Failures)
		kinds := make([]string, 0, len(counts))
		for kind := range counts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", kind, counts[kind])
		}
	}

	if in.CreditsRemaining >= 0 {
		fmt.Fprintf(&b, "Credits remaining: %d\n", in.CreditsRemaining)
	}
	return strings.TrimRight(b.String(), "\n")
}

// failuresByKind tallies failure counts per error kind name.
func failuresByKind(failures []imagegen.GenerationOutcome) map[string]int {
	counts := make(map[string]int, len(failures))
	for _, out := range failures {
		counts[out.Kind.String()]++
	}
	return counts
}

// ProgressLine renders one in-flight status line with a text bar:
//
//	[=====-----] 5/10
func ProgressLine(completed, total int) string {
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}
	return fmt.Sprintf("[%s] %d/%d", progressBar(completed, total, 10), completed, total)
}

// progressBar fills width cells proportionally to completed/total.
func progressBar(completed, total, width int) string {
	if total <= 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}
	filled := completed * width / total
	return strings.Repeat("=", filled) + strings.Repeat("-", width-filled)
}

// formatDuration trims sub-100ms noise from durations meant for humans.
func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Millisecond).String()
}

func pluralCredits(n int) string {
	if n == 1 {
		return "credit"
	}
	return "credits"
}
