// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"sort"
	"time"

	"github.com/AleutianAI/projectassist/services/assistant/clients/jira"
)

// Workload thresholds, as multiples of the mean task count.
const (
	OverloadFactor  = 1.5
	UnderloadFactor = 0.5
)

// DueSoonDays is the window, in days from today, that counts as due soon.
const DueSoonDays = 7

// Distribution classifies how evenly work is spread.
type Distribution string

const (
	Balanced           Distribution = "balanced"
	SomewhatUnbalanced Distribution = "somewhat unbalanced"
	HighlyUnbalanced   Distribution = "highly unbalanced"
)

// AssigneeLoad is one person's share of the work.
type AssigneeLoad struct {
	Name         string
	Tasks        int
	HighPriority int
	DueSoon      int
	Overdue      int
	Overloaded   bool
	Underloaded  bool
}

// Workload is the distribution of work across assignees.
type Workload struct {
	// Assignees are the named assignees, most tasks first.
	Assignees []AssigneeLoad

	// Unassigned counts issues with no assignee. It is included in Total
	// but not in Mean, Gap or the overload flags.
	Unassigned AssigneeLoad

	Total        int
	Mean         float64
	Gap          int
	Distribution Distribution
	Overloaded   []string
	Underloaded  []string
}

// AnalyzeWorkload groups issues by assignee and flags imbalance.
//
// Description:
//
//	Per assignee: task count, High/Highest count, due within DueSoonDays
//	and not yet past, and overdue (past due and not done). The mean is
//	over named assignees only. Above OverloadFactor x mean is overloaded,
//	below UnderloadFactor x mean underloaded. Gap is max minus min; a gap
//	above the mean is highly unbalanced, above half the mean somewhat
//	unbalanced.
func AnalyzeWorkload(issues []jira.Issue, now time.Time) *Workload {
	loc := now.Location()
	today := startOfDay(now)
	soon := today.AddDate(0, 0, DueSoonDays)

	w := &Workload{Total: len(issues), Unassigned: AssigneeLoad{Name: jira.UnassignedName}}
	byName := make(map[string]*AssigneeLoad)
	var order []string

	for i := range issues {
		issue := &issues[i]
		name := issue.AssigneeName()
		load := &w.Unassigned
		if name != jira.UnassignedName {
			var ok bool
			load, ok = byName[name]
			if !ok {
				load = &AssigneeLoad{Name: name}
				byName[name] = load
				order = append(order, name)
			}
		}
		load.Tasks++
		if issue.IsHighPriority() {
			load.HighPriority++
		}
		if due, ok := issue.Due(loc); ok && !issue.IsDone() {
			switch {
			case due.Before(today):
				load.Overdue++
			case !due.After(soon):
				load.DueSoon++
			}
		}
	}

	if len(order) == 0 {
		w.Distribution = Balanced
		return w
	}

	minTasks, maxTasks, sum := -1, 0, 0
	for _, name := range order {
		n := byName[name].Tasks
		sum += n
		if n > maxTasks {
			maxTasks = n
		}
		if minTasks < 0 || n < minTasks {
			minTasks = n
		}
	}
	w.Mean = float64(sum) / float64(len(order))
	w.Gap = maxTasks - minTasks

	for _, name := range order {
		load := byName[name]
		n := float64(load.Tasks)
		load.Overloaded = n > OverloadFactor*w.Mean
		load.Underloaded = n < UnderloadFactor*w.Mean
		w.Assignees = append(w.Assignees, *load)
	}
	sort.SliceStable(w.Assignees, func(i, j int) bool {
		return w.Assignees[i].Tasks > w.Assignees[j].Tasks
	})
	for _, a := range w.Assignees {
		if a.Overloaded {
			w.Overloaded = append(w.Overloaded, a.Name)
		}
		if a.Underloaded {
			w.Underloaded = append(w.Underloaded, a.Name)
		}
	}

	gap := float64(w.Gap)
	switch {
	case gap > w.Mean:
		w.Distribution = HighlyUnbalanced
	case gap > w.Mean/2:
		w.Distribution = SomewhatUnbalanced
	default:
		w.Distribution = Balanced
	}
	return w
}
