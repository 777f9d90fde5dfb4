package timeline

import (
	"testing"

	"tessera/api/internal/block"
)

func fsChain() *block.TimelineContent {
	return &block.TimelineContent{
		Events: []block.TimelineEvent{
			{ID: "x", Title: "X", Start: "2026-03-02", End: "2026-03-06"},
			{ID: "y", Title: "Y", Start: "2026-03-06", End: "2026-03-10"},
			{ID: "z", Title: "Z", Start: "2026-03-03", End: "2026-03-05"},
		},
		Dependencies: []block.Dependency{
			{FromEventID: "x", ToEventID: "y", Type: block.DepFinishToStart},
		},
	}
}

func TestCriticalPathFinishToStart(t *testing.T) {
	sched, err := Compute(fsChain())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !sched.Critical["x"] || !sched.Critical["y"] {
		t.Fatalf("x and y form the critical chain: %+v", sched.Critical)
	}
	if sched.Critical["z"] {
		t.Fatal("z has no dependencies and must not be critical")
	}
	if sched.EarliestStart["y"] != "2026-03-06" {
		t.Fatalf("y earliest start %s", sched.EarliestStart["y"])
	}
	if sched.LatestFinish["x"] != "2026-03-06" {
		t.Fatalf("x latest finish %s", sched.LatestFinish["x"])
	}
}

func TestSlackBreaksCriticality(t *testing.T) {
	content := fsChain()
	// Y starts two days after X finishes: both ends gain slack.
	content.Events[1].Start = "2026-03-08"
	content.Events[1].End = "2026-03-12"

	sched, err := Compute(content)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if sched.Critical["x"] {
		t.Fatal("x has latest-finish slack and is not critical")
	}
	// Y still starts at its own earliest bound from its actual date.
	if sched.EarliestStart["y"] != "2026-03-08" {
		t.Fatalf("y earliest start %s", sched.EarliestStart["y"])
	}
}

func TestCycleIsAnError(t *testing.T) {
	content := fsChain()
	content.Dependencies = append(content.Dependencies, block.Dependency{
		FromEventID: "y", ToEventID: "x", Type: block.DepFinishToStart,
	})
	if _, err := Compute(content); err == nil {
		t.Fatal("expected cycle error")
	}
	if err := AutoSchedule(content); err == nil {
		t.Fatal("autoschedule should also reject the cycle")
	}
}

func TestAutoSchedulePushesDependentForward(t *testing.T) {
	content := &block.TimelineContent{
		Events: []block.TimelineEvent{
			{ID: "x", Start: "2026-03-02", End: "2026-03-06"},
			{ID: "y", Start: "2026-03-02", End: "2026-03-04"},
		},
		Dependencies: []block.Dependency{
			{FromEventID: "x", ToEventID: "y", Type: block.DepFinishToStart},
		},
	}
	if err := AutoSchedule(content); err != nil {
		t.Fatalf("autoschedule: %v", err)
	}
	if content.Events[1].Start != "2026-03-06" {
		t.Fatalf("y start %s, want pushed to x's finish", content.Events[1].Start)
	}
	// Duration is preserved.
	if content.Events[1].End != "2026-03-08" {
		t.Fatalf("y end %s", content.Events[1].End)
	}
	// X is untouched.
	if content.Events[0].Start != "2026-03-02" || content.Events[0].End != "2026-03-06" {
		t.Fatalf("x moved: %s..%s", content.Events[0].Start, content.Events[0].End)
	}
}

func TestAutoScheduleNeverPullsEarlier(t *testing.T) {
	content := &block.TimelineContent{
		Events: []block.TimelineEvent{
			{ID: "x", Start: "2026-03-02", End: "2026-03-04"},
			{ID: "y", Start: "2026-03-20", End: "2026-03-22"},
		},
		Dependencies: []block.Dependency{
			{FromEventID: "x", ToEventID: "y", Type: block.DepFinishToStart},
		},
	}
	if err := AutoSchedule(content); err != nil {
		t.Fatalf("autoschedule: %v", err)
	}
	if content.Events[1].Start != "2026-03-20" {
		t.Fatalf("y pulled earlier: %s", content.Events[1].Start)
	}
}

func TestStartToStartBound(t *testing.T) {
	content := &block.TimelineContent{
		Events: []block.TimelineEvent{
			{ID: "x", Start: "2026-03-02", End: "2026-03-06"},
			{ID: "y", Start: "2026-03-01", End: "2026-03-03"},
		},
		Dependencies: []block.Dependency{
			{FromEventID: "x", ToEventID: "y", Type: block.DepStartToStart},
		},
	}
	if err := AutoSchedule(content); err != nil {
		t.Fatalf("autoschedule: %v", err)
	}
	if content.Events[1].Start != "2026-03-02" {
		t.Fatalf("start-to-start should align starts: %s", content.Events[1].Start)
	}
}

func TestMilestoneHasZeroDuration(t *testing.T) {
	content := &block.TimelineContent{
		Events: []block.TimelineEvent{
			{ID: "m", Start: "2026-03-02", End: "2026-03-09", IsMilestone: true},
			{ID: "y", Start: "2026-03-01", End: "2026-03-03"},
		},
		Dependencies: []block.Dependency{
			{FromEventID: "m", ToEventID: "y", Type: block.DepFinishToStart},
		},
	}
	if err := AutoSchedule(content); err != nil {
		t.Fatalf("autoschedule: %v", err)
	}
	// The milestone finishes the day it starts, so y lands there.
	if content.Events[1].Start != "2026-03-02" {
		t.Fatalf("y start %s, want the milestone day", content.Events[1].Start)
	}
}

func TestDanglingAndMalformedInputsAreSkipped(t *testing.T) {
	content := &block.TimelineContent{
		Events: []block.TimelineEvent{
			{ID: "x", Start: "2026-03-02", End: "2026-03-06"},
			{ID: "bad", Start: "soon", End: "later"},
		},
		Dependencies: []block.Dependency{
			{FromEventID: "x", ToEventID: "ghost", Type: block.DepFinishToStart},
			{FromEventID: "bad", ToEventID: "x", Type: block.DepFinishToStart},
			{FromEventID: "x", ToEventID: "x", Type: block.DepFinishToStart},
		},
	}
	sched, err := Compute(content)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if _, ok := sched.EarliestStart["bad"]; ok {
		t.Fatal("unparseable event should be skipped")
	}
	if sched.Critical["x"] {
		t.Fatal("x kept no valid dependencies and must not be critical")
	}
}
