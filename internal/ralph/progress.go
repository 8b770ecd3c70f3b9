package ralph

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const maxOutputChars = 2000

// appendProgress appends one `## Iteration N` section to progress.md,
// creating the file if it does not exist. progress.md is append-only;
// nothing already written is ever rewritten.
func appendProgress(progressPath string, iteration int, taskText, status string, duration time.Duration, at time.Time, output string) error {
	f, err := os.OpenFile(progressPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ralph: open %s: %w", progressPath, err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "## Iteration %d – Task: %q\n\n", iteration, taskText)
	fmt.Fprintf(&b, "- status: %s\n", status)
	fmt.Fprintf(&b, "- duration: %s\n", duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "- timestamp: %s\n\n", at.Format(time.RFC3339))
	b.WriteString("```\n")
	b.WriteString(truncateOutput(output))
	b.WriteString("\n```\n\n")

	_, err = f.WriteString(b.String())
	return err
}

func truncateOutput(output string) string {
	if len(output) <= maxOutputChars {
		return output
	}
	return output[:maxOutputChars] + "...(truncated)"
}

// readProgress returns the contents of progress.md, or "" if it does
// not exist yet.
func readProgress(progressPath string) string {
	data, err := os.ReadFile(progressPath)
	if err != nil {
		return ""
	}
	return string(data)
}
