package ralph

import (
	"strings"
	"testing"
)

func TestBuildWorkPromptIncludesAllSections(t *testing.T) {
	prompt := buildWorkPrompt("write handler", "## Iteration 1\nlearned X", "go test ./...", DomainCoding)

	for _, want := range []string{"write handler", "learned X", "go test ./...", "smallest change"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildWorkPromptOmitsEmptySections(t *testing.T) {
	prompt := buildWorkPrompt("write handler", "", "", DomainGeneral)

	if strings.Contains(prompt, "## Verification") {
		t.Fatalf("expected no verification section:\n%s", prompt)
	}
	if strings.Contains(prompt, "## Progress so far") {
		t.Fatalf("expected no progress section:\n%s", prompt)
	}
}

func TestGuidelinesForUnknownDomainFallsBackToGeneral(t *testing.T) {
	got := guidelinesFor(Domain("unknown"))
	want := domainGuidelines[DomainGeneral]
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("got %v, want fallback to general guidelines %v", got, want)
	}
}

func TestDefaultAutoCommit(t *testing.T) {
	if !defaultAutoCommit(DomainCoding) {
		t.Fatal("coding domain should default autoCommit to true")
	}
	for _, d := range []Domain{DomainResearch, DomainOps, DomainGeneral, Domain("")} {
		if defaultAutoCommit(d) {
			t.Fatalf("domain %q should default autoCommit to false", d)
		}
	}
}
