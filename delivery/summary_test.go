package delivery

import (
	"strings"
	"testing"
	"time"

	"genforge/imagegen"
)

func successOutcomes(n int) []imagegen.GenerationOutcome {
	outs := make([]imagegen.GenerationOutcome, n)
	for i := range outs {
		outs[i] = imagegen.GenerationOutcome{Index: i, Success: true}
	}
	return outs
}

func TestBuildSummary_AllSucceeded(t *testing.T) {
	got := BuildSummary(SummaryInput{
		Result: imagegen.BatchResult{
			Successes:    successOutcomes(4),
			TotalElapsed: 8 * time.Second,
		},
		CreditsRemaining: -1,
	})

	want := "Generated 4/4 images in 8s (avg 2s per image)"
	if got != want {
		t.Errorf("BuildSummary() = %q, want %q", got, want)
	}
}

func TestBuildSummary_PartialFailureWithRefund(t *testing.T) {
	got := BuildSummary(SummaryInput{
		Result: imagegen.BatchResult{
			Successes: successOutcomes(3),
			Failures: []imagegen.GenerationOutcome{
				{Index: 3, Kind: imagegen.ErrorKindPolicyRejection},
				{Index: 4, Kind: imagegen.ErrorKindUpstream},
				{Index: 5, Kind: imagegen.ErrorKindUpstream},
			},
			TotalElapsed: 9 * time.Second,
		},
		Refunded:         3,
		CreditsRemaining: 7,
	})

	for _, want := range []string{
		"Generated 3/6 images",
		"3 failed; 3 credits refunded",
		"policy_rejection: 1",
		"upstream_error: 2",
		"Credits remaining: 7",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestBuildSummary_SingleCreditSingular(t *testing.T) {
	got := BuildSummary(SummaryInput{
		Result: imagegen.BatchResult{
			Failures: []imagegen.GenerationOutcome{{Kind: imagegen.ErrorKindUpstream}},
		},
		Refunded:         1,
		CreditsRemaining: -1,
	})

	if !strings.Contains(got, "1 credit refunded") {
		t.Errorf("summary should use singular credit:\n%s", got)
	}
}

func TestBuildSummary_TotalFailureOmitsAverage(t *testing.T) {
	got := BuildSummary(SummaryInput{
		Result: imagegen.BatchResult{
			Failures:     []imagegen.GenerationOutcome{{Kind: imagegen.ErrorKindUpstream}},
			TotalElapsed: 5 * time.Second,
		},
		CreditsRemaining: -1,
	})

	if strings.Contains(got, "avg") {
		t.Errorf("summary should omit average with zero successes:\n%s", got)
	}
	if !strings.Contains(got, "Generated 0/1 images") {
		t.Errorf("summary missing headline:\n%s", got)
	}
}

func TestProgressLine(t *testing.T) {
	tests := []struct {
		completed int
		total     int
		want      string
	}{
		{0, 10, "[----------] 0/10"},
		{5, 10, "[=====-----] 5/10"},
		{10, 10, "[==========] 10/10"},
		{1, 3, "[===-------] 1/3"},
		{7, 5, "[==========] 5/5"},
		{0, 0, "[----------] 0/0"},
	}
	for _, tt := range tests {
		if got := ProgressLine(tt.completed, tt.total); got != tt.want {
			t.Errorf("ProgressLine(%d, %d) = %q, want %q", tt.completed, tt.total, got, tt.want)
		}
	}
}
