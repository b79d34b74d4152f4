// Package spatial pairs recipient points with donor points inside a distance buffer.
package spatial

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// EarthRadius is the mean Earth radius in metres
const EarthRadius = 6371008.8

// Site is a located point
type Site struct {
	ID  string
	Lat float64
	Lon float64
}

// Located reports whether the site has usable coordinates
func (s Site) Located() bool {
	return !math.IsNaN(s.Lat) && !math.IsNaN(s.Lon) && math.Abs(s.Lat) <= 90 && math.Abs(s.Lon) <= 180
}

// Pair is a donor found within a recipient's buffer
type Pair struct {
	Recipient string
	Donor     string
	Distance  float64
}

// Joiner finds, for each recipient, every donor within buffer metres
type Joiner interface {
	BufferJoin(ctx context.Context, recipients, donors []Site, buffer float64) ([]Pair, error)
}

// BufferJoiner is the default Joiner: great-circle distance with a k-d tree
// over Earth-centred coordinates
type BufferJoiner struct{}

// NewBufferJoiner creates the default joiner
func NewBufferJoiner() *BufferJoiner {
	return &BufferJoiner{}
}

// BufferJoin implements Joiner. Pairs are ordered by recipient, then distance, then donor.
func (j *BufferJoiner) BufferJoin(ctx context.Context, recipients, donors []Site, buffer float64) ([]Pair, error) {
	if buffer < 0 || len(recipients) == 0 || len(donors) == 0 {
		return nil, nil
	}

	byCoord := make(map[[3]float64][]Site)
	var pts kdtree.Points
	for _, d := range donors {
		if !d.Located() {
			continue
		}
		p := toECEF(d)
		c := [3]float64{p[0], p[1], p[2]}
		if _, ok := byCoord[c]; !ok {
			pts = append(pts, p)
		}
		byCoord[c] = append(byCoord[c], d)
	}
	if len(pts) == 0 {
		return nil, nil
	}
	tree := kdtree.New(pts, false)

	// chord length for the buffer arc; the tree measures squared Euclidean distance
	chord := 2 * EarthRadius * math.Sin(math.Min(buffer/(2*EarthRadius), math.Pi/2))

	var pairs []Pair
	for _, r := range recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.Located() {
			continue
		}
		keep := kdtree.NewDistKeeper(chord * chord * (1 + 1e-12))
		tree.NearestSet(keep, toECEF(r))

		seen := make(map[string]bool)
		for _, cd := range keep.Heap {
			p, ok := cd.Comparable.(kdtree.Point)
			if !ok || p == nil {
				continue
			}
			for _, d := range byCoord[[3]float64{p[0], p[1], p[2]}] {
				if seen[d.ID] {
					continue
				}
				dist := Haversine(r.Lat, r.Lon, d.Lat, d.Lon)
				if dist > buffer {
					continue
				}
				seen[d.ID] = true
				pairs = append(pairs, Pair{Recipient: r.ID, Donor: d.ID, Distance: dist})
			}
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].Recipient != pairs[b].Recipient {
			return pairs[a].Recipient < pairs[b].Recipient
		}
		if pairs[a].Distance != pairs[b].Distance {
			return pairs[a].Distance < pairs[b].Distance
		}
		return pairs[a].Donor < pairs[b].Donor
	})
	return pairs, nil
}

// Haversine returns the great-circle distance in metres
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := radians(lat1), radians(lat2)
	dLat := p2 - p1
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}

func toECEF(s Site) kdtree.Point {
	lat, lon := radians(s.Lat), radians(s.Lon)
	return kdtree.Point{
		EarthRadius * math.Cos(lat) * math.Cos(lon),
		EarthRadius * math.Cos(lat) * math.Sin(lon),
		EarthRadius * math.Sin(lat),
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
