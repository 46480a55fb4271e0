package tabulate

import (
	"fmt"
	"slices"
	"strconv"
)

// Summary is the year-over-year join of county areas: one row per county,
// one intermix and one interface column per year.
type Summary struct {
	Years    []int
	Counties []int
	cells    map[[2]int]CountyArea
}

// Join builds a Summary from county areas of any number of years. A later
// entry for the same (county, year) replaces an earlier one.
func Join(areas []CountyArea) *Summary {
	s := &Summary{cells: make(map[[2]int]CountyArea, len(areas))}
	for _, a := range areas {
		s.cells[[2]int{a.CountyNumb, a.Year}] = a
		if !slices.Contains(s.Years, a.Year) {
			s.Years = append(s.Years, a.Year)
		}
		if !slices.Contains(s.Counties, a.CountyNumb) {
			s.Counties = append(s.Counties, a.CountyNumb)
		}
	}
	slices.Sort(s.Years)
	slices.Sort(s.Counties)
	return s
}

// Get returns the areas of county in year. Missing pairs report false.
func (s *Summary) Get(county, year int) (CountyArea, bool) {
	a, ok := s.cells[[2]int{county, year}]
	return a, ok
}

// Year returns the county areas of one year ordered by county. Counties with
// no entry for the year get zero areas.
func (s *Summary) Year(year int) []CountyArea {
	out := make([]CountyArea, 0, len(s.Counties))
	for _, c := range s.Counties {
		a, ok := s.Get(c, year)
		if !ok {
			a = CountyArea{CountyNumb: c, Year: year}
		}
		out = append(out, a)
	}
	return out
}

// Header returns the wide-table column names.
func (s *Summary) Header() []string {
	h := []string{"COUNTYNUMB"}
	for _, y := range s.Years {
		h = append(h, fmt.Sprintf("imWUI_%d", y), fmt.Sprintf("ifWUI_%d", y))
	}
	return h
}

// Rows returns the wide table as strings, aligned with Header. Missing
// (county, year) pairs are empty.
func (s *Summary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Counties))
	for _, c := range s.Counties {
		row := []string{strconv.Itoa(c)}
		for _, y := range s.Years {
			a, ok := s.Get(c, y)
			if !ok {
				row = append(row, "", "")
				continue
			}
			row = append(row, formatArea(a.IntermixArea), formatArea(a.InterfaceArea))
		}
		rows = append(rows, row)
	}
	return rows
}

func formatArea(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
