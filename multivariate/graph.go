package multivariate

import (
	"fmt"
	"slices"
	"strings"

	"tsbench/tsdata"
)

// Term is one weighted series of a contemporaneous constraint.
type Term struct {
	Series int
	Coef   float64
}

// Contemporaneous is Target = Σ Coef·Series at every period, or
// Constant = Σ Coef·Series when Target is -1.
type Contemporaneous struct {
	Target   int
	Constant float64
	Terms    []Term
}

// Temporal is Aggregate = Type(Detail) on every complete window.
type Temporal struct {
	Aggregate int
	Detail    int
	Type      tsdata.AggregationType
}

// Graph is the compiled set of constraints. Series are referred to by
// their index in Names.
type Graph struct {
	Names           []string
	Contemporaneous []Contemporaneous
	Temporal        []Temporal

	index map[string]int
}

// Group is a set of series connected by constraints, with the indices of
// the constraints that link them.
type Group struct {
	Series          []int
	Contemporaneous []int
	Temporal        []int
}

// Compile parses the constraints of spec against the available series
// names. Wildcards are expanded in name order and never include the target
// of their own constraint.
func Compile(spec Spec, names []string) (*Graph, error) {
	g := &Graph{Names: slices.Clone(names), index: make(map[string]int, len(names))}
	slices.Sort(g.Names)
	g.Names = slices.Compact(g.Names)
	for i, n := range g.Names {
		g.index[n] = i
	}

	for _, s := range spec.Contemporaneous {
		eq, err := parseEquation(s)
		if err != nil {
			return nil, err
		}
		c := Contemporaneous{Target: -1, Constant: eq.constant}
		if eq.target != "" {
			t, ok := g.index[eq.target]
			if !ok {
				return nil, fmt.Errorf("%w: %q in %q", ErrUnknownSeries, eq.target, s)
			}
			c.Target = t
		}
		coefs := make(map[int]float64)
		var order []int
		add := func(i int, v float64) {
			if _, ok := coefs[i]; !ok {
				order = append(order, i)
			}
			coefs[i] += v
		}
		for _, t := range eq.terms {
			if !t.wildcard {
				i, ok := g.index[t.name]
				if !ok {
					return nil, fmt.Errorf("%w: %q in %q", ErrUnknownSeries, t.name, s)
				}
				add(i, t.coef)
				continue
			}
			matched := false
			for i, n := range g.Names {
				if strings.HasPrefix(n, t.name) && i != c.Target {
					add(i, t.coef)
					matched = true
				}
			}
			if !matched {
				return nil, fmt.Errorf("%w: no series matches %s* in %q", ErrUnknownSeries, t.name, s)
			}
		}
		for _, i := range order {
			if coefs[i] != 0 {
				c.Terms = append(c.Terms, Term{Series: i, Coef: coefs[i]})
			}
		}
		if len(c.Terms) == 0 {
			return nil, fmt.Errorf("%w: %q has no component", ErrSyntax, s)
		}
		g.Contemporaneous = append(g.Contemporaneous, c)
	}

	for _, s := range spec.Temporal {
		a, err := parseAggregation(s)
		if err != nil {
			return nil, err
		}
		agg, ok := g.index[a.aggregate]
		if !ok {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownSeries, a.aggregate, s)
		}
		det, ok := g.index[a.detail]
		if !ok {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownSeries, a.detail, s)
		}
		g.Temporal = append(g.Temporal, Temporal{Aggregate: agg, Detail: det, Type: a.kind})
	}
	return g, nil
}

// Index returns the index of a series name, -1 when unknown.
func (g *Graph) Index(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return -1
}

// Validate checks that fixed series are never adjusted and that each series
// has at most one temporal constraint.
func (g *Graph) Validate() error {
	// fixed series and the constraint that binds them
	bound := make(map[int]string)
	for k, c := range g.Contemporaneous {
		if c.Target >= 0 {
			bound[c.Target] = fmt.Sprintf("contemporaneous constraint %d", k)
		}
	}
	for k, t := range g.Temporal {
		bound[t.Aggregate] = fmt.Sprintf("temporal constraint %d", k)
	}

	for k, c := range g.Contemporaneous {
		for _, t := range c.Terms {
			if by, ok := bound[t.Series]; ok {
				return fmt.Errorf("%w: %q, fixed by %s, is a component of contemporaneous constraint %d",
					ErrBoundSeriesReused, g.Names[t.Series], by, k)
			}
		}
	}
	detail := make(map[int]int)
	for k, t := range g.Temporal {
		if by, ok := bound[t.Detail]; ok {
			return fmt.Errorf("%w: %q, fixed by %s, is the detail of temporal constraint %d",
				ErrBoundSeriesReused, g.Names[t.Detail], by, k)
		}
		if prev, ok := detail[t.Detail]; ok {
			return fmt.Errorf("%w: %q in temporal constraints %d and %d",
				ErrDuplicateTemporal, g.Names[t.Detail], prev, k)
		}
		detail[t.Detail] = k
	}
	return nil
}

// Partition returns the connected groups of constrained series, ordered by
// their first series. Unconstrained series belong to no group.
func (g *Graph) Partition() []Group {
	parent := make([]int, len(g.Names))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra < rb {
			parent[rb] = ra
		} else if rb < ra {
			parent[ra] = rb
		}
	}

	used := make([]bool, len(g.Names))
	for _, c := range g.Contemporaneous {
		first := c.Terms[0].Series
		used[first] = true
		for _, t := range c.Terms[1:] {
			union(first, t.Series)
			used[t.Series] = true
		}
		if c.Target >= 0 {
			union(first, c.Target)
			used[c.Target] = true
		}
	}
	for _, t := range g.Temporal {
		union(t.Aggregate, t.Detail)
		used[t.Aggregate], used[t.Detail] = true, true
	}

	byRoot := make(map[int]int)
	var groups []Group
	for i := range g.Names {
		if !used[i] {
			continue
		}
		r := find(i)
		k, ok := byRoot[r]
		if !ok {
			k = len(groups)
			byRoot[r] = k
			groups = append(groups, Group{})
		}
		groups[k].Series = append(groups[k].Series, i)
	}
	for k, c := range g.Contemporaneous {
		gi := byRoot[find(c.Terms[0].Series)]
		groups[gi].Contemporaneous = append(groups[gi].Contemporaneous, k)
	}
	for k, t := range g.Temporal {
		gi := byRoot[find(t.Detail)]
		groups[gi].Temporal = append(groups[gi].Temporal, k)
	}
	return groups
}
