package classify

import (
	// Packages
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Number of coarse elevation buckets
	elevations = 16

	// Aspect ratios which separate the shapes
	aspectSquare    = 1.2
	aspectRectangle = 2.5
)

var climates = map[reader.Landscape]schema.Climate{
	reader.LandscapeTemperate: schema.ClimateTemperate,
	reader.LandscapeArctic:    schema.ClimateSubArctic,
	reader.LandscapeTropic:    schema.ClimateSubTropical,
	reader.LandscapeToyland:   schema.ClimateToyland,
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Heightmap classifies the resolution, shape and terrain of a heightmap.
// Each sixteen levels of gray form one elevation.
func (c *Classifier) Heightmap(h *reader.Heightmap) *schema.Classification {
	if h == nil || h.Width <= 0 || h.Height <= 0 {
		return nil
	}
	surface := uint64(h.Width) * uint64(h.Height)

	var small [elevations]uint64
	for i, v := range h.Histogram[1:] {
		small[(i+1)/16] += v
	}
	terrain, ok := c.terrain(small, surface-h.Histogram[0])
	if !ok {
		return nil
	}

	result := &schema.Classification{
		Resolution:  schema.ResolutionHigh,
		Shape:       shape(uint64(h.Width), uint64(h.Height)),
		TerrainType: terrain,
	}
	switch {
	case surface < 256*256:
		result.Resolution = schema.ResolutionLow
	case surface < 1024*1024:
		result.Resolution = schema.ResolutionNormal
	}
	return result
}

// Scenario classifies the size, shape, terrain and climate of a scenario.
// Each height level up to fourteen is one elevation, higher levels are
// counted together.
func (c *Classifier) Scenario(s *reader.Scenario) *schema.Classification {
	if s == nil || s.MapSize[0] == 0 || s.MapSize[1] == 0 {
		return nil
	}
	surface := uint64(s.MapSize[0]) * uint64(s.MapSize[1])

	var small [elevations]uint64
	for i, v := range s.Histogram[1:] {
		small[min(i+1, elevations-1)] += v
	}
	terrain, ok := c.terrain(small, surface-s.Histogram[0])
	if !ok {
		return nil
	}

	result := &schema.Classification{
		Size:        schema.SizeHuge,
		Shape:       shape(uint64(s.MapSize[0]), uint64(s.MapSize[1])),
		TerrainType: terrain,
	}
	switch {
	case surface < 256*256:
		result.Size = schema.SizeSmall
	case surface == 256*256:
		result.Size = schema.SizeNormal
	case surface <= 1024*1024:
		result.Size = schema.SizeLarge
	}
	if s.Landscape != nil {
		result.Climate = climates[*s.Landscape]
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// terrain returns the terrain type from the spread between the lowest and
// highest elevation covering at least one percent of the land, or false
// when there is no land or no elevation is common enough
func (c *Classifier) terrain(small [elevations]uint64, land uint64) (schema.TerrainType, bool) {
	if land == 0 {
		return "", false
	}
	lowest, highest := -1, -1
	for i, v := range small {
		if v*100 < land {
			continue
		}
		if lowest == -1 {
			lowest = i
		}
		highest = i
	}
	if lowest == -1 {
		return "", false
	}

	switch spread := highest - lowest; {
	case spread > c.TerrainMountainous:
		return schema.TerrainMountainous, true
	case spread > c.TerrainHilly:
		return schema.TerrainHilly, true
	case spread > c.TerrainFlat:
		return schema.TerrainFlat, true
	default:
		return schema.TerrainVeryFlat, true
	}
}

func shape(x, y uint64) schema.Shape {
	aspect := float64(max(x, y)) / float64(min(x, y))
	switch {
	case aspect < aspectSquare:
		return schema.ShapeSquare
	case aspect < aspectRectangle:
		return schema.ShapeRectangle
	default:
		return schema.ShapeNarrow
	}
}
