package commands

import (
	"errors"
	"fmt"
	"strconv"
	"unicode"
)

// ErrTaskRefRequired indicates no task number was provided.
var ErrTaskRefRequired = errors.New("task number required")

// ParseTaskRef parses the 1-based task number in args[0], as printed by list.
func ParseTaskRef(args []string) (int, error) {
	if len(args) == 0 {
		return 0, ErrTaskRefRequired
	}
	return parseTaskNumber(args[0])
}

func parseTaskNumber(s string) (int, error) {
	if !isAllDigits(s) {
		return 0, fmt.Errorf("invalid task number: %s", s)
	}
	num, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid task number: %s", s)
	}
	if num < 1 {
		return 0, fmt.Errorf("task number out of range: %d", num)
	}
	return num, nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
