package graph

import (
	"sort"
	"strconv"

	"github.com/passbi/busgraph/internal/models"
)

// Compare orders stops for listing: favorites first, then by the number the
// name starts with. Names starting with a number come before names that don't.
func Compare(a, b *models.Stop) int {
	if a.Favorite != b.Favorite {
		if a.Favorite {
			return -1
		}
		return 1
	}
	return compareStartingNumbers(a.Name, b.Name)
}

func compareStartingNumbers(a, b string) int {
	n1 := startingNumber(a)
	n2 := startingNumber(b)
	switch {
	case n1 > -1 && n2 > -1:
		return sign(n1 - n2)
	case n1 > -1:
		return -1
	case n2 > -1:
		return 1
	}
	return 0
}

// startingNumber parses the leading run of digits, or -1 if there is none
func startingNumber(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return -1
	}
	v, err := strconv.Atoi(s[:n])
	if err != nil {
		return -1
	}
	return v
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// SortStops sorts in place by Compare, keeping feed order between equals
func SortStops(stops []*models.Stop) {
	sort.SliceStable(stops, func(i, j int) bool {
		return Compare(stops[i], stops[j]) < 0
	})
}
