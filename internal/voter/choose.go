package voter

import "strings"

// ChooseOption returns the index of the first option whose text contains
// want (case-insensitive), falling back to 0 when nothing matches and -1
// when the option list is empty.
func ChooseOption(options []string, want string) int {
	if len(options) == 0 {
		return -1
	}
	w := strings.ToLower(want)
	for i, opt := range options {
		if strings.Contains(strings.ToLower(opt), w) {
			return i
		}
	}
	return 0
}
