// Package prompt assembles the classification requests sent to the
// model: the fixed system prompt plus one INPUT block per record. The
// two experimental conditions differ only in whether the block carries
// the long description.
package prompt

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"descbench/internal/domain"
)

var digitRunRe = regexp.MustCompile(`\d+`)

// LoadSystemPrompt reads the fixed system prompt. The same text goes
// into every request regardless of condition.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading system prompt: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return text, nil
}

// UserMessage formats a record into the model's input block. Under
// ConditionShort the Long Description line is omitted entirely, not
// blanked, so the model never sees the field.
func UserMessage(rec domain.Record, cond domain.Condition) string {
	var b strings.Builder
	b.WriteString("INPUT:\n")
	b.WriteString("CompanyID: " + orNA(rec.ID) + "\n")
	b.WriteString("CompanyName: " + orNA(rec.Name) + "\n")
	b.WriteString("Short Description: " + orNA(rec.ShortDescription) + "\n")
	if cond == domain.ConditionBoth {
		b.WriteString("Long Description: " + orNA(rec.LongDescription) + "\n")
	}
	b.WriteString("Keywords: " + orNA(rec.Keywords) + "\n")
	b.WriteString("YearFounded: " + ExtractYear(rec.YearFounded))
	return b.String()
}

// ExtractYear pulls a 4-digit year out of a date string in any of the
// dataset's formats ("01nov2016", "2016-11-01"). Returns "N/A" when no
// year is found.
func ExtractYear(date string) string {
	date = strings.TrimSpace(date)
	if date == "" || date == "N/A" {
		return "N/A"
	}
	// A year is a standalone 4-digit run starting 19 or 20; scanning
	// digit runs keeps "01nov2016" working, where no word boundary
	// separates the letters from the year.
	for _, run := range digitRunRe.FindAllString(date, -1) {
		if len(run) == 4 && (strings.HasPrefix(run, "19") || strings.HasPrefix(run, "20")) {
			return run
		}
	}
	return "N/A"
}

func orNA(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "N/A"
	}
	return s
}
