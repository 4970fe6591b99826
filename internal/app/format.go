package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Patterns matched against displayed field values: stored text such as
// approval notes often embeds "by <user> on <timestamp>" suffixes that are
// redundant next to the activity item's own author and timestamp.
var (
	userTimestampPattern = regexp.MustCompile(`\s+on\s+\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}(\.\d+)?`)
	userDatePattern      = regexp.MustCompile(`\s+on\s+\d{4}-\d{2}-\d{2}`)
	bareTimestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}(\.\d+)?`)
)

var fieldTitleCaser = cases.Title(language.English)

// cleanFieldValue strips embedded timestamps and collapses whitespace.
func cleanFieldValue(value string) string {
	if value == "" || value == "None" {
		return value
	}
	value = userTimestampPattern.ReplaceAllString(value, "")
	value = userDatePattern.ReplaceAllString(value, "")
	value = bareTimestampPattern.ReplaceAllString(value, "")
	return strings.Join(strings.Fields(value), " ")
}

// displayValue renders a raw diff value for display. Nil becomes "None".
func displayValue(value any) string {
	if value == nil {
		return "None"
	}
	return fmt.Sprint(value)
}

// formatFieldChange renders one field transition as a human-readable string.
// Known fields get specific phrasing; the rest fall back to
// "Field Name: old → new".
func (s *Service) formatFieldChange(ctx context.Context, field string, oldValue, newValue any) string {
	oldDisplay := cleanFieldValue(displayValue(oldValue))
	newDisplay := cleanFieldValue(displayValue(newValue))

	switch field {
	case "status":
		return fmt.Sprintf("Status: %s → %s", oldDisplay, newDisplay)
	case "priority":
		return fmt.Sprintf("Priority: %s → %s", oldDisplay, newDisplay)
	case "allocated_to":
		oldName := "None"
		if oldDisplay != "None" && oldDisplay != "" {
			oldName = s.userDisplay(ctx, oldDisplay)
		}
		newName := "None"
		if newDisplay != "None" && newDisplay != "" {
			newName = s.userDisplay(ctx, newDisplay)
		}
		return fmt.Sprintf("Assigned to: %s → %s", oldName, newName)
	case "description":
		return "Subject updated"
	case "reference_name":
		return fmt.Sprintf("Project: %s → %s", oldDisplay, newDisplay)
	case "reference_type":
		return fmt.Sprintf("Reference Type: %s → %s", oldDisplay, newDisplay)
	default:
		fieldDisplay := fieldTitleCaser.String(strings.ReplaceAll(field, "_", " "))
		return fmt.Sprintf("%s: %s → %s", fieldDisplay, oldDisplay, newDisplay)
	}
}
