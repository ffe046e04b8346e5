package common

import "strings"

// filter applies include/exclude substring filters to record text.
type filter struct {
	includes []string
	excludes []string
}

func (f *filter) allow(text string) bool {
	if len(f.includes) > 0 {
		ok := false
		for _, inc := range f.includes {
			if inc == "" || strings.Contains(text, inc) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, exc := range f.excludes {
		if exc != "" && strings.Contains(text, exc) {
			return false
		}
	}
	return true
}
