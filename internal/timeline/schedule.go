// Package timeline computes critical-path annotations and automatic
// scheduling over a timeline block's dependency DAG.
package timeline

import (
	"fmt"
	"time"

	"tessera/api/internal/block"
)

const dayLayout = "2006-01-02"

// Schedule is the derived annotation set for a timeline block: per-event
// earliest start, latest finish, and criticality. An event is critical
// when it participates in at least one dependency and has zero slack on
// both ends (earliest start equals actual start, latest finish equals
// actual end).
type Schedule struct {
	EarliestStart map[string]string `json:"earliestStart"`
	LatestFinish  map[string]string `json:"latestFinish"`
	Critical      map[string]bool   `json:"critical"`
}

type node struct {
	start int // days
	end   int
	dur   int
}

// Compute builds the dependency DAG and runs the forward earliest-start
// pass and the reverse latest-finish pass seeded from terminal nodes.
// Events with unparseable dates or dangling dependency endpoints are
// skipped. A dependency cycle is an error.
func Compute(content *block.TimelineContent) (Schedule, error) {
	nodes, deps := buildGraph(content)

	order, err := topoOrder(nodes, deps)
	if err != nil {
		return Schedule{}, err
	}

	es := make(map[string]int, len(nodes))
	for id, n := range nodes {
		es[id] = n.start
	}
	for _, id := range order {
		for _, d := range deps {
			if d.FromEventID != id {
				continue
			}
			to := nodes[d.ToEventID]
			bound := forwardBound(d.Type, es[id], nodes[id], to)
			if bound > es[d.ToEventID] {
				es[d.ToEventID] = bound
			}
		}
	}

	lf := make(map[string]int, len(nodes))
	for id, n := range nodes {
		lf[id] = n.end
	}
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		first := true
		for _, d := range deps {
			if d.FromEventID != id {
				continue
			}
			bound := reverseBound(d.Type, lf[d.ToEventID], nodes[id], nodes[d.ToEventID])
			if first || bound < lf[id] {
				lf[id] = bound
				first = false
			}
		}
	}

	linked := make(map[string]bool)
	for _, d := range deps {
		linked[d.FromEventID] = true
		linked[d.ToEventID] = true
	}

	sched := Schedule{
		EarliestStart: make(map[string]string, len(nodes)),
		LatestFinish:  make(map[string]string, len(nodes)),
		Critical:      make(map[string]bool, len(nodes)),
	}
	for id, n := range nodes {
		sched.EarliestStart[id] = formatDay(es[id])
		sched.LatestFinish[id] = formatDay(lf[id])
		sched.Critical[id] = linked[id] && es[id] == n.start && lf[id] == n.end
	}
	return sched, nil
}

// AutoSchedule shifts each dependent event forward in topological order
// so every dependency constraint holds, preserving each event's original
// duration. Events are never pulled earlier than where they already are.
func AutoSchedule(content *block.TimelineContent) error {
	nodes, deps := buildGraph(content)

	order, err := topoOrder(nodes, deps)
	if err != nil {
		return err
	}

	for _, id := range order {
		for _, d := range deps {
			if d.FromEventID != id {
				continue
			}
			from, to := nodes[id], nodes[d.ToEventID]
			bound := forwardBound(d.Type, from.start, from, to)
			if bound > to.start {
				to.start = bound
				to.end = to.start + to.dur
			}
		}
	}

	for i := range content.Events {
		ev := &content.Events[i]
		n, ok := nodes[ev.ID]
		if !ok {
			continue
		}
		ev.Start = formatDay(n.start)
		ev.End = formatDay(n.end)
	}
	return nil
}

// forwardBound is the earliest start the dependency imposes on its
// target, given the source's (possibly recomputed) start.
func forwardBound(depType string, fromStart int, from, to *node) int {
	switch depType {
	case block.DepStartToStart:
		return fromStart
	case block.DepFinishToFinish:
		return fromStart + from.dur - to.dur
	case block.DepStartToFinish:
		return fromStart - to.dur
	default: // finish-to-start
		return fromStart + from.dur
	}
}

// reverseBound is the latest finish the dependency allows its source,
// given the target's latest finish.
func reverseBound(depType string, toLatestFinish int, from, to *node) int {
	switch depType {
	case block.DepStartToStart:
		return toLatestFinish - to.dur + from.dur
	case block.DepFinishToFinish:
		return toLatestFinish
	case block.DepStartToFinish:
		return toLatestFinish + from.dur
	default: // finish-to-start
		return toLatestFinish - to.dur
	}
}

func buildGraph(content *block.TimelineContent) (map[string]*node, []block.Dependency) {
	nodes := make(map[string]*node, len(content.Events))
	for _, ev := range content.Events {
		start, err1 := parseDay(ev.Start)
		end, err2 := parseDay(ev.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if ev.IsMilestone {
			end = start // milestones have zero duration
		}
		if end < start {
			end = start
		}
		nodes[ev.ID] = &node{start: start, end: end, dur: end - start}
	}

	deps := make([]block.Dependency, 0, len(content.Dependencies))
	for _, d := range content.Dependencies {
		if _, ok := nodes[d.FromEventID]; !ok {
			continue
		}
		if _, ok := nodes[d.ToEventID]; !ok {
			continue
		}
		if d.FromEventID == d.ToEventID {
			continue
		}
		deps = append(deps, d)
	}
	return nodes, deps
}

// topoOrder is Kahn's algorithm; leftover nodes mean a cycle.
func topoOrder(nodes map[string]*node, deps []block.Dependency) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for _, d := range deps {
		indegree[d.ToEventID]++
	}

	queue := make([]string, 0, len(nodes))
	for id, n := range indegree {
		if n == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, d := range deps {
			if d.FromEventID != id {
				continue
			}
			indegree[d.ToEventID]--
			if indegree[d.ToEventID] == 0 {
				queue = append(queue, d.ToEventID)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("dependency cycle detected")
	}
	return order, nil
}

func parseDay(s string) (int, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return 0, err
	}
	return int(t.Unix() / 86400), nil
}

func formatDay(d int) string {
	return time.Unix(int64(d)*86400, 0).UTC().Format(dayLayout)
}
