package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultThresholdKm is the default maximum edge length of the proximity graph.
const DefaultThresholdKm = 100.0

// errBudgetExceeded aborts the clustering of a single date.
var errBudgetExceeded = errors.New("per-date cluster budget exceeded")

// ClusterOptions configures spatial clustering.
type ClusterOptions struct {
	// ThresholdKm is the maximum great-circle distance for an edge.
	ThresholdKm float64
	// Budget bounds the time spent on one date. Zero disables it.
	Budget time.Duration
	// GridMinSites is the node count from which candidate pairs come from a
	// lat/lon grid instead of all pairs. Zero disables the grid.
	GridMinSites int
	// Clock measures the budget; nil uses the package clock.
	Clock clockwork.Clock
}

// ClusterResult is the spatial view of one source.
type ClusterResult struct {
	Clusters []ClusterRow
	// SkippedDates are dates left unanalysed after a date exceeded the budget.
	SkippedDates []time.Time
	// CoordinateMisses counts distinct missing sites without coordinates.
	CoordinateMisses int
}

// ClusterDates builds, for every date, a proximity graph over the missing
// sites that have coordinates and keeps connected components of two or more
// sites. Groups must include single-site dates; they are harmless and keep the
// coordinate miss count complete.
//
// When a date exceeds the budget its partial result is discarded and it and
// every later date are reported in SkippedDates. Context cancellation between
// dates returns the error.
func ClusterDates(ctx context.Context, groups []DateMissingGroup, idx CoordinateIndex, opts ClusterOptions) (ClusterResult, error) {
	if opts.Clock == nil {
		opts.Clock = clock
	}

	var result ClusterResult
	misses := make(map[string]struct{})
	seen := make(map[string]struct{})

	ordered := slices.Clone(groups)
	slices.SortStableFunc(ordered, func(a, b DateMissingGroup) int {
		return a.Date.Compare(b.Date)
	})

	for i, g := range ordered {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("cluster dates: %w", err)
		}

		nodes := make([]clusterNode, 0, len(g.SiteIDs))
		for _, id := range g.SiteIDs {
			c, ok := idx.Lookup(id)
			if !ok {
				misses[id] = struct{}{}
				continue
			}
			nodes = append(nodes, clusterNode{siteID: id, coords: c})
		}
		if len(nodes) < 2 {
			continue
		}

		guard := budgetGuard{clock: opts.Clock, start: opts.Clock.Now(), budget: opts.Budget}
		components, err := connectedComponents(nodes, opts, guard)
		if errors.Is(err, errBudgetExceeded) {
			for _, rest := range ordered[i:] {
				result.SkippedDates = append(result.SkippedDates, rest.Date)
			}
			break
		}

		date := dateOf(g.Date)
		for _, ids := range components {
			key := date.Format(time.DateOnly) + "|" + strings.Join(ids, ",")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result.Clusters = append(result.Clusters, ClusterRow{Date: date, SiteIDs: ids})
		}
	}

	slices.SortFunc(result.Clusters, func(a, b ClusterRow) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(strings.Join(a.SiteIDs, ", "), strings.Join(b.SiteIDs, ", "))
	})
	result.CoordinateMisses = len(misses)
	return result, nil
}

// ClusterSites returns the connected components (two or more sites) of the
// proximity graph over the given sites, checking every pair. Sites without
// coordinates are left out. Components and their members are sorted.
func ClusterSites(siteIDs []string, idx CoordinateIndex, thresholdKm float64) [][]string {
	nodes := make([]clusterNode, 0, len(siteIDs))
	for _, id := range siteIDs {
		if c, ok := idx.Lookup(id); ok {
			nodes = append(nodes, clusterNode{siteID: id, coords: c})
		}
	}
	components, _ := connectedComponents(nodes, ClusterOptions{ThresholdKm: thresholdKm}, budgetGuard{})
	return components
}

type clusterNode struct {
	siteID string
	coords Coordinates
}

type budgetGuard struct {
	clock  clockwork.Clock
	start  time.Time
	budget time.Duration
}

func (g budgetGuard) exceeded() bool {
	return g.budget > 0 && g.clock != nil && g.clock.Since(g.start) > g.budget
}

// connectedComponents unions every pair of nodes within the threshold and
// returns the components of size >= 2, each sorted, ordered by their joined
// site ids.
func connectedComponents(nodes []clusterNode, opts ClusterOptions, guard budgetGuard) ([][]string, error) {
	uf := newUnionFind(len(nodes))

	var grid *siteGrid
	useGrid := opts.GridMinSites > 0 && len(nodes) >= opts.GridMinSites
	if useGrid {
		grid, useGrid = newSiteGrid(nodes, opts.ThresholdKm)
	}

	var err error
	if useGrid {
		err = grid.unionWithin(nodes, opts.ThresholdKm, uf, guard)
	} else {
		err = unionAllPairs(nodes, opts.ThresholdKm, uf, guard)
	}
	if err != nil {
		return nil, err
	}

	members := make(map[int][]string)
	for i, n := range nodes {
		root := uf.find(i)
		members[root] = append(members[root], n.siteID)
	}

	components := make([][]string, 0, len(members))
	for _, ids := range members {
		if len(ids) < 2 {
			continue
		}
		slices.Sort(ids)
		components = append(components, ids)
	}
	slices.SortFunc(components, func(a, b []string) int {
		return strings.Compare(strings.Join(a, ", "), strings.Join(b, ", "))
	})
	return components, nil
}

func unionAllPairs(nodes []clusterNode, thresholdKm float64, uf *unionFind, guard budgetGuard) error {
	for i := range nodes {
		if guard.exceeded() {
			return errBudgetExceeded
		}
		for j := i + 1; j < len(nodes); j++ {
			if Haversine(nodes[i].coords, nodes[j].coords) <= thresholdKm {
				uf.union(i, j)
			}
		}
	}
	return nil
}

// kmPerDegreeLat is the meridional length of one degree on the mean sphere.
const kmPerDegreeLat = EarthRadiusKm * math.Pi / 180

// siteGrid buckets nodes into lat/lon cells at least one threshold wide so
// that any pair within the threshold lies in the same or adjacent cells.
type siteGrid struct {
	latCell float64 // degrees
	lonCell float64 // degrees, 360/lonCells
	lonN    int
	cells   map[[2]int][]int
}

// newSiteGrid reports false when the grid cannot bound the search, e.g. for
// a non-positive threshold or nodes too close to a pole.
func newSiteGrid(nodes []clusterNode, thresholdKm float64) (*siteGrid, bool) {
	if thresholdKm <= 0 || thresholdKm >= EarthRadiusKm*math.Pi/2 || len(nodes) == 0 {
		return nil, false
	}

	maxAbsLat := 0.0
	for _, n := range nodes {
		maxAbsLat = math.Max(maxAbsLat, math.Abs(n.coords.Lat))
	}
	cosMax := math.Cos(maxAbsLat * math.Pi / 180)
	if cosMax <= 0 {
		return nil, false
	}

	// Two points within distance d with |lat| <= maxAbsLat differ in longitude
	// by at most 2*asin(sin(d/2R) / cos(maxAbsLat)).
	s := math.Sin(thresholdKm/(2*EarthRadiusKm)) / cosMax
	if s >= 1 {
		return nil, false
	}
	minLonWidth := 2 * math.Asin(s) * 180 / math.Pi
	lonN := int(math.Floor(360 / minLonWidth))
	if lonN < 3 {
		return nil, false
	}

	g := &siteGrid{
		latCell: thresholdKm / kmPerDegreeLat,
		lonCell: 360 / float64(lonN),
		lonN:    lonN,
		cells:   make(map[[2]int][]int),
	}
	for i, n := range nodes {
		k := g.key(n.coords)
		g.cells[k] = append(g.cells[k], i)
	}
	return g, true
}

func (g *siteGrid) key(c Coordinates) [2]int {
	y := int(math.Floor((c.Lat + 90) / g.latCell))
	x := int(math.Floor((c.Lon+180)/g.lonCell)) % g.lonN
	if x < 0 {
		x += g.lonN
	}
	return [2]int{y, x}
}

func (g *siteGrid) unionWithin(nodes []clusterNode, thresholdKm float64, uf *unionFind, guard budgetGuard) error {
	for i, n := range nodes {
		if guard.exceeded() {
			return errBudgetExceeded
		}
		k := g.key(n.coords)
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				x := ((k[1]+dx)%g.lonN + g.lonN) % g.lonN
				for _, j := range g.cells[[2]int{k[0] + dy, x}] {
					if j <= i {
						continue
					}
					if Haversine(n.coords, nodes[j].coords) <= thresholdKm {
						uf.union(i, j)
					}
				}
			}
		}
	}
	return nil
}
