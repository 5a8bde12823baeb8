package tsdata

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is the number of periods in a year.
type Unit int

// Supported units
const (
	Yearly        Unit = 1
	HalfYearly    Unit = 2
	QuadriMonthly Unit = 3
	Quarterly     Unit = 4
	Bimonthly     Unit = 6
	Monthly       Unit = 12
)

// Valid reports whether u divides the year into whole months.
func (u Unit) Valid() bool {
	switch u {
	case Yearly, HalfYearly, QuadriMonthly, Quarterly, Bimonthly, Monthly:
		return true
	}
	return false
}

func (u Unit) String() string {
	switch u {
	case Yearly:
		return "yearly"
	case HalfYearly:
		return "halfyearly"
	case QuadriMonthly:
		return "quadrimonthly"
	case Quarterly:
		return "quarterly"
	case Bimonthly:
		return "bimonthly"
	case Monthly:
		return "monthly"
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// ParseUnit accepts the names returned by String and a few common aliases.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yearly", "annual", "y", "a":
		return Yearly, nil
	case "halfyearly", "half-yearly", "semester", "h":
		return HalfYearly, nil
	case "quadrimonthly", "t":
		return QuadriMonthly, nil
	case "quarterly", "q":
		return Quarterly, nil
	case "bimonthly", "b":
		return Bimonthly, nil
	case "monthly", "m":
		return Monthly, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Ratio returns the number of high-frequency periods in one low-frequency
// period. It fails unless low divides high.
func Ratio(high, low Unit) (int, error) {
	if !high.Valid() || !low.Valid() {
		return 0, fmt.Errorf("%w: %d/%d", ErrInvalidUnit, high, low)
	}
	if high < low || int(high)%int(low) != 0 {
		return 0, fmt.Errorf("%w: %s is not a multiple of %s", ErrInvalidRatio, high, low)
	}
	return int(high) / int(low), nil
}

// Period is one regular calendar period. Index counts periods from year 0,
// so that year = Index / Unit and position = Index % Unit.
type Period struct {
	Unit  Unit
	Index int
}

// NewPeriod returns the period at the 0-based position of the given year.
func NewPeriod(unit Unit, year, position int) Period {
	return Period{Unit: unit, Index: year*int(unit) + position}
}

// Year of the period.
func (p Period) Year() int {
	return floorDiv(p.Index, int(p.Unit))
}

// Position of the period inside its year, 0-based.
func (p Period) Position() int {
	return p.Index - p.Year()*int(p.Unit)
}

// Plus moves the period n steps forward (or backward when n < 0).
func (p Period) Plus(n int) Period {
	return Period{Unit: p.Unit, Index: p.Index + n}
}

// Minus returns the number of periods from q to p. Both must share a unit.
func (p Period) Minus(q Period) int {
	return p.Index - q.Index
}

// Convert returns the period of unit u that contains the start of p.
func (p Period) Convert(u Unit) Period {
	months := p.Index * (12 / int(p.Unit))
	return Period{Unit: u, Index: floorDiv(months, 12/int(u))}
}

func (p Period) String() string {
	y, pos := p.Year(), p.Position()
	switch p.Unit {
	case Yearly:
		return strconv.Itoa(y)
	case Monthly:
		return fmt.Sprintf("%d-%02d", y, pos+1)
	case Quarterly:
		return fmt.Sprintf("%d-Q%d", y, pos+1)
	case HalfYearly:
		return fmt.Sprintf("%d-H%d", y, pos+1)
	}
	return fmt.Sprintf("%d-P%d", y, pos+1)
}

// ParsePeriod reads labels such as "2020", "2020-03", "2020-Q1", "2020Q1",
// "2020-H2" or "2020-P3". Positions in labels are 1-based.
func ParsePeriod(unit Unit, s string) (Period, error) {
	if !unit.Valid() {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidUnit, unit)
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	yearPart, posPart := s, ""
	if i := strings.IndexAny(s, "-QMHPS"); i > 0 {
		yearPart, posPart = s[:i], strings.TrimLeft(s[i:], "-")
		posPart = strings.TrimLeft(posPart, "QMHPS")
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	pos := 1
	if posPart != "" {
		pos, err = strconv.Atoi(posPart)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
	}
	if pos < 1 || pos > int(unit) {
		return Period{}, fmt.Errorf("%w: %q has no position %d for %s data", ErrInvalidPeriod, s, pos, unit)
	}
	return NewPeriod(unit, year, pos-1), nil
}

// Domain is a contiguous run of periods.
type Domain struct {
	Start  Period
	Length int
}

// End returns the first period after the domain.
func (d Domain) End() Period {
	return d.Start.Plus(d.Length)
}

// Get returns the i-th period of the domain.
func (d Domain) Get(i int) Period {
	return d.Start.Plus(i)
}

// IndexOf returns the position of p in the domain, or -1.
func (d Domain) IndexOf(p Period) int {
	if p.Unit != d.Start.Unit {
		return -1
	}
	i := p.Minus(d.Start)
	if i < 0 || i >= d.Length {
		return -1
	}
	return i
}

// Contains reports whether p lies in the domain.
func (d Domain) Contains(p Period) bool {
	return d.IndexOf(p) >= 0
}

// IsEmpty reports whether the domain has no period.
func (d Domain) IsEmpty() bool {
	return d.Length <= 0
}

// Intersect returns the common periods of d and o. The result may be empty.
func (d Domain) Intersect(o Domain) (Domain, error) {
	if d.Start.Unit != o.Start.Unit {
		return Domain{}, fmt.Errorf("%w: %s and %s", ErrIncompatibleUnit, d.Start.Unit, o.Start.Unit)
	}
	start := d.Start
	if o.Start.Index > start.Index {
		start = o.Start
	}
	end := d.End()
	if o.End().Index < end.Index {
		end = o.End()
	}
	n := end.Minus(start)
	if n < 0 {
		n = 0
	}
	return Domain{Start: start, Length: n}, nil
}

func (d Domain) String() string {
	if d.Length <= 0 {
		return "[]"
	}
	return fmt.Sprintf("[%s, %s]", d.Start, d.Start.Plus(d.Length-1))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
