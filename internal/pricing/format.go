package pricing

import "fmt"

// FormatMinor renders a minor-unit amount as dollars, e.g. 4500 -> "$45.00".
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
}
