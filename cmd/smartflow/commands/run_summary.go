package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/wonny/smartflow/internal/audit"
	"github.com/wonny/smartflow/internal/contracts"
)

// printRunSummary prints the counts every run kind shares
func printRunSummary(run *audit.RunSnapshot) {
	s := run.Summary

	fmt.Println()
	PrintKeyValue("Run ID", run.RunID, 14)
	PrintKeyValue("As-of", contracts.DateKey(run.AsOf), 14)
	PrintKeyValue("Config hash", shortHash(run.ConfigHash), 14)
	PrintKeyValue("Duration", FormatDuration(run.Duration), 14)
	PrintSeparator()
	PrintKeyValue("Dates", fmt.Sprintf("%d (accepted %d)", s.Dates, s.AcceptedDates), 14)
	PrintKeyValue("Soft excluded", strconv.Itoa(s.SoftExcluded), 14)
	if run.Kind != audit.KindQuality {
		PrintKeyValue("Symbols", strconv.Itoa(s.Symbols), 14)
		PrintKeyValue("Stale filled", strconv.Itoa(s.StaleFilled), 14)
		PrintKeyValue("Vectors", strconv.Itoa(s.Vectors), 14)
		PrintKeyValue("Illiquid", strconv.Itoa(s.Illiquid), 14)
		PrintKeyValue("Anomalies", strconv.Itoa(s.Anomalies), 14)
	}

	if len(s.ExcludedDates) > 0 {
		fmt.Println()
		PrintInfo(fmt.Sprintf("Excluded dates (%d)", len(s.ExcludedDates)))
		dates := make([]string, 0, len(s.ExcludedDates))
		for d := range s.ExcludedDates {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		items := make([]string, len(dates))
		for i, d := range dates {
			items[i] = d + ": " + s.ExcludedDates[d]
		}
		PrintList(items)
	}

	if len(s.Skipped) > 0 {
		fmt.Println()
		PrintInfo("Skipped horizons")
		PrintList(sortedReasons(s.Skipped))
	}
}

// printStages prints stage timings in run order
func printStages(run *audit.RunSnapshot) {
	fmt.Println()
	widths := []int{12, 10}
	PrintTableHeader([]string{"STAGE", "TIME"}, widths)
	for _, st := range run.Stages {
		PrintTableRow([]string{st.Stage, FormatDuration(st.Seconds)}, widths)
	}
}

func sortedReasons(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + ": " + m[k]
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
