// Package ralph implements the RALPH autonomous work loop (§4.I):
// driving a single LLM subprocess through a checkbox task list
// (PLAN.md), verifying each attempt, and recording progress.
package ralph

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// TaskStatus is one of PLAN.md's four marker states.
type TaskStatus rune

const (
	StatusOpen       TaskStatus = ' '
	StatusDone       TaskStatus = 'x'
	StatusBlocked    TaskStatus = '!'
	StatusInProgress TaskStatus = '~'
)

// taskLine matches a checkbox task line; the marker is capture group 2,
// the task text is capture group 4. All other lines in PLAN.md are
// ignored.
var taskLine = regexp.MustCompile(`^(\s*-\s*\[)([x !~])(\]\s+)(.+)$`)

// Task is one parsed PLAN.md entry. Index is the 0-based sequence
// number among matching lines, used by UpdateTaskStatus to target the
// same line without needing to re-derive it from text.
type Task struct {
	Index  int
	Status TaskStatus
	Text   string
}

// ParsePlan extracts every checkbox task line from content, in order.
func ParsePlan(content string) []Task {
	lines := strings.Split(content, "\n")
	var tasks []Task
	idx := 0
	for _, line := range lines {
		m := taskLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		tasks = append(tasks, Task{Index: idx, Status: TaskStatus(m[2][0]), Text: m[4]})
		idx++
	}
	return tasks
}

// readPlanFile reads a plan file, returning a descriptive error on
// failure.
func readPlanFile(planPath string) (string, error) {
	data, err := os.ReadFile(planPath)
	if err != nil {
		return "", fmt.Errorf("ralph: read %s: %w", planPath, err)
	}
	return string(data), nil
}

// readPlanFileOrEmpty reads a plan file, returning "" if it cannot be
// read (used for the final remaining-task tally, where a missing file
// simply means zero remaining tasks).
func readPlanFileOrEmpty(planPath string) string {
	content, err := readPlanFile(planPath)
	if err != nil {
		return ""
	}
	return content
}

// UpdateTaskStatus rewrites exactly the marker character of the index'th
// matching task line in the file at planPath, leaving every other byte
// — including surrounding whitespace and unrelated lines — untouched.
func UpdateTaskStatus(planPath string, index int, status TaskStatus) error {
	data, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("ralph: read %s: %w", planPath, err)
	}

	lines := strings.Split(string(data), "\n")
	seen := 0
	found := false
	for i, line := range lines {
		m := taskLine.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		if seen == index {
			// Submatch index pairs: m[4:6] is the marker capture group.
			markerStart, markerEnd := m[4], m[5]
			lines[i] = line[:markerStart] + string(rune(status)) + line[markerEnd:]
			found = true
			break
		}
		seen++
	}
	if !found {
		return fmt.Errorf("ralph: no task at index %d in %s", index, planPath)
	}

	tmp := planPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("ralph: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, planPath); err != nil {
		return fmt.Errorf("ralph: publish %s: %w", planPath, err)
	}
	return nil
}
