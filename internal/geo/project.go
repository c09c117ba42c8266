// Package geo projects vendor polygon sets into the wire snapshot shape,
// including the enclosing-circle approximation used for display.
package geo

// Polygon is a campaign geofence as supplied by the vendor SDK. Vertex
// order and polygon order are campaign priority order and must be
// preserved.
type Polygon struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Vertices []Vertex `json:"vertices"`
}

type Vertex struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Snapshot is the wire shape delivered on the geofence channel.
type Snapshot struct {
	Stats    Stats             `json:"stats"`
	Polygons []SnapshotPolygon `json:"polygons"`
	Circles  []SnapshotCircle  `json:"circles"`
}

// Stats keeps campaign and polygon counts as two fields for forward
// compatibility with many-polygons-per-campaign; today they are equal.
type Stats struct {
	CampaignsTotal int `json:"campaignsTotal"`
	PolygonsTotal  int `json:"polygonsTotal"`
}

type SnapshotPolygon struct {
	CampaignID   int      `json:"campaignId"`
	CampaignName string   `json:"campaignName"`
	Vertices     []Vertex `json:"vertices"`
}

type SnapshotCircle struct {
	CampaignID   int     `json:"campaignId"`
	CampaignName string  `json:"campaignName"`
	Center       Vertex  `json:"center"`
	Radius       float64 `json:"radius"`
}

// Project converts a polygon list into the snapshot. Every polygon appears
// in Polygons verbatim; each polygon with at least one vertex additionally
// contributes a circle (simple centroid center, max great-circle distance
// radius). Zero-vertex polygons still count toward the stats.
func Project(polygons []Polygon) Snapshot {
	snap := Snapshot{
		Stats: Stats{
			CampaignsTotal: len(polygons),
			PolygonsTotal:  len(polygons),
		},
		Polygons: make([]SnapshotPolygon, 0, len(polygons)),
		Circles:  make([]SnapshotCircle, 0, len(polygons)),
	}

	for _, p := range polygons {
		vertices := p.Vertices
		if vertices == nil {
			vertices = []Vertex{}
		}
		snap.Polygons = append(snap.Polygons, SnapshotPolygon{
			CampaignID:   p.ID,
			CampaignName: p.Name,
			Vertices:     vertices,
		})

		center, radius, ok := enclosingCircle(p.Vertices)
		if !ok {
			continue
		}
		snap.Circles = append(snap.Circles, SnapshotCircle{
			CampaignID:   p.ID,
			CampaignName: p.Name,
			Center:       center,
			Radius:       radius,
		})
	}

	return snap
}

// enclosingCircle derives the display circle: center is the arithmetic mean
// of vertex coordinates (not geodesic-weighted), radius the maximum
// great-circle distance from center to any vertex.
func enclosingCircle(vertices []Vertex) (Vertex, float64, bool) {
	if len(vertices) == 0 {
		return Vertex{}, 0, false
	}

	var latSum, lngSum float64
	for _, v := range vertices {
		latSum += v.Latitude
		lngSum += v.Longitude
	}
	center := Vertex{
		Latitude:  latSum / float64(len(vertices)),
		Longitude: lngSum / float64(len(vertices)),
	}

	radius := 0.0
	for _, v := range vertices {
		if d := Distance(center, v); d > radius {
			radius = d
		}
	}
	return center, radius, true
}
