package block

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ValidateCell checks a candidate cell value against its column's
// configuration. A non-nil error means the value must be rejected before
// any write is issued. Empty cells are always allowed.
func ValidateCell(col ColumnConfig, value string) error {
	if value == "" {
		return nil
	}
	switch col.Type {
	case "number":
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", value)
		}
		if col.Min != nil && n < *col.Min {
			return fmt.Errorf("value %v is below minimum %v", n, *col.Min)
		}
		if col.Max != nil && n > *col.Max {
			return fmt.Errorf("value %v is above maximum %v", n, *col.Max)
		}
	case "date":
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fmt.Errorf("%q is not a date (want YYYY-MM-DD)", value)
		}
	case "checkbox":
		if value != "true" && value != "false" {
			return fmt.Errorf("%q is not a checkbox value", value)
		}
	case "select":
		if len(col.Options) == 0 {
			return nil
		}
		for _, opt := range col.Options {
			if value == opt {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of the column options", value)
	default:
		if col.Pattern != "" {
			re, err := regexp.Compile(col.Pattern)
			if err != nil {
				// A broken pattern never blocks the user.
				return nil
			}
			if !re.MatchString(value) {
				return fmt.Errorf("value does not match pattern %s", col.Pattern)
			}
		}
	}
	return nil
}
