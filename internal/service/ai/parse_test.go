package ai

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSummaryJSON(t *testing.T) {
	got, err := ParseSummary("```json\n{\"summary\":\" Done. \",\"key_points\":[\" a \",\"\"],\"action_items\":null}\n```")
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if got.Summary != "Done." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if !reflect.DeepEqual(got.KeyPoints, []string{"a"}) {
		t.Fatalf("unexpected key points: %#v", got.KeyPoints)
	}
	if got.ActionItems == nil || len(got.ActionItems) != 0 {
		t.Fatalf("action items should be an empty list, got %#v", got.ActionItems)
	}
}

func TestParseSummarySections(t *testing.T) {
	content := "**Summary:**\nAlice asked about the release. Bob wants QA first. They agreed on Friday.\n\n" +
		"Key discussion points:\n- Release date\n* QA sign-off\n2. Rollback plan\n\n" +
		"Action items:\n1) Bob books QA\n- 3 engineers on call"

	got, err := ParseSummary(content)
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if got.Summary != "Alice asked about the release. Bob wants QA first. They agreed on Friday." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if !reflect.DeepEqual(got.KeyPoints, []string{"Release date", "QA sign-off", "Rollback plan"}) {
		t.Fatalf("unexpected key points: %#v", got.KeyPoints)
	}
	if !reflect.DeepEqual(got.ActionItems, []string{"Bob books QA", "3 engineers on call"}) {
		t.Fatalf("unexpected action items: %#v", got.ActionItems)
	}
}

func TestParseSummaryMissingSections(t *testing.T) {
	got, err := ParseSummary("Just a single paragraph summary.")
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if got.Summary != "Just a single paragraph summary." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if got.KeyPoints == nil || got.ActionItems == nil {
		t.Fatal("missing sections should yield empty lists")
	}
	if len(got.KeyPoints) != 0 || len(got.ActionItems) != 0 {
		t.Fatalf("expected empty lists, got %+v", got)
	}
}

func TestParseSummaryInvalidJSONFallsBack(t *testing.T) {
	got, err := ParseSummary("{not json}\n\nPoints:\n- one")
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if got.Summary != "{not json}" || !reflect.DeepEqual(got.KeyPoints, []string{"one"}) {
		t.Fatalf("unexpected fallback parse: %+v", got)
	}
}

func TestParseSummaryEmpty(t *testing.T) {
	if _, err := ParseSummary(" \n\t"); !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("expected ErrEmptyOutput, got %v", err)
	}
}

func TestParseSummaryKeepsBoldListItems(t *testing.T) {
	content := "They approved the budget.\n\nKey points:\n- **Budget**: approved\n* **Scope** stays fixed\n\n" +
		"Action items:\n1. **Alice**: draft plan\n- 2) **Bob** reviews"

	got, err := ParseSummary(content)
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if !reflect.DeepEqual(got.KeyPoints, []string{"**Budget**: approved", "**Scope** stays fixed"}) {
		t.Fatalf("unexpected key points: %#v", got.KeyPoints)
	}
	if !reflect.DeepEqual(got.ActionItems, []string{"**Alice**: draft plan", "**Bob** reviews"}) {
		t.Fatalf("unexpected action items: %#v", got.ActionItems)
	}
}

func TestParseSummaryJSONWithEmptySummary(t *testing.T) {
	got, err := ParseSummary(`{"summary":"","key_points":["a"],"action_items":[]}`)
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if got.Summary != "" {
		t.Fatalf("summary should stay empty, got %q", got.Summary)
	}
	if !reflect.DeepEqual(got.KeyPoints, []string{"a"}) || got.ActionItems == nil || len(got.ActionItems) != 0 {
		t.Fatalf("unexpected lists: %+v", got)
	}

	if _, err := ParseSummary(`{"summary":" ","key_points":[],"action_items":null}`); !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("expected ErrEmptyOutput for an empty JSON answer, got %v", err)
	}
}

func TestParseSummaryMarkdownHeadings(t *testing.T) {
	content := "## Summary\nThey agreed.\n\n## Key points\n- Ship Friday\n\n## Action items\n- Bob books QA"

	got, err := ParseSummary(content)
	if err != nil {
		t.Fatalf("ParseSummary err: %v", err)
	}
	if got.Summary != "They agreed." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if !reflect.DeepEqual(got.KeyPoints, []string{"Ship Friday"}) || !reflect.DeepEqual(got.ActionItems, []string{"Bob books QA"}) {
		t.Fatalf("unexpected lists: %+v", got)
	}
}
