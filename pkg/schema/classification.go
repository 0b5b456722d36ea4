package schema

import (
	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type (
	Resolution  string
	Shape       string
	TerrainType string
	Size        string
	Climate     string
	Palette     string
	NewGRFSet   string
)

// Classification is the set of facets derived from the primary file of a
// package. Facets which do not apply to the content type are left empty.
type Classification struct {
	Resolution      Resolution  `json:"resolution,omitempty"`
	Shape           Shape       `json:"shape,omitempty"`
	TerrainType     TerrainType `json:"terrain-type,omitempty"`
	Size            Size        `json:"size,omitempty"`
	Climate         Climate     `json:"climate,omitempty"`
	Palette         Palette     `json:"palette,omitempty"`
	HasHighRes      *bool       `json:"has-high-res,omitempty"`
	HasSoundEffects *bool       `json:"has-sound-effects,omitempty"`
	Set             NewGRFSet   `json:"set,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	ResolutionLow    Resolution = "low"
	ResolutionNormal Resolution = "normal"
	ResolutionHigh   Resolution = "high"
)

const (
	ShapeSquare    Shape = "square"
	ShapeRectangle Shape = "rectangle"
	ShapeNarrow    Shape = "narrow"
)

const (
	TerrainVeryFlat    TerrainType = "very-flat"
	TerrainFlat        TerrainType = "flat"
	TerrainHilly       TerrainType = "hilly"
	TerrainMountainous TerrainType = "mountainous"
)

const (
	SizeSmall  Size = "small"
	SizeNormal Size = "normal"
	SizeLarge  Size = "large"
	SizeHuge   Size = "huge"
)

const (
	ClimateTemperate   Climate = "temperate"
	ClimateSubArctic   Climate = "sub-arctic"
	ClimateSubTropical Climate = "sub-tropical"
	ClimateToyland     Climate = "toyland"
)

const (
	Palette8bpp  Palette = "8bpp"
	Palette32bpp Palette = "32bpp"
)

const (
	SetUnknown     NewGRFSet = "unknown"
	SetMixed       NewGRFSet = "mixed"
	SetVehicle     NewGRFSet = "vehicle"
	SetTrain       NewGRFSet = "train"
	SetRoadVehicle NewGRFSet = "road-vehicle"
	SetShip        NewGRFSet = "ship"
	SetAircraft    NewGRFSet = "aircraft"
	SetAirport     NewGRFSet = "airport"
	SetEconomy     NewGRFSet = "economy"
	SetBridge      NewGRFSet = "bridge"
	SetGUI         NewGRFSet = "gui"
	SetTown        NewGRFSet = "town"
	SetRailInfra   NewGRFSet = "rail-infra"
	SetRoadInfra   NewGRFSet = "road-infra"
	SetWaterInfra  NewGRFSet = "water-infra"
	SetLandscape   NewGRFSet = "landscape"
	SetSignal      NewGRFSet = "signal"
	SetIndustry    NewGRFSet = "industry"
	SetObject      NewGRFSet = "object"
	SetRailStation NewGRFSet = "rail-station"
	SetTownname    NewGRFSet = "townname"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Values returns the facet values as strings, in a stable order. Boolean
// facets are only included when true, as "has-high-res" or
// "has-sound-effects".
func (c *Classification) Values() []string {
	if c == nil {
		return nil
	}
	var result []string
	for _, v := range []string{string(c.Resolution), string(c.Shape), string(c.TerrainType), string(c.Size), string(c.Climate), string(c.Palette), string(c.Set)} {
		if v != "" {
			result = append(result, v)
		}
	}
	if c.HasHighRes != nil && *c.HasHighRes {
		result = append(result, "has-high-res")
	}
	if c.HasSoundEffects != nil && *c.HasSoundEffects {
		result = append(result, "has-sound-effects")
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (c Classification) String() string {
	return types.Stringify(c)
}
