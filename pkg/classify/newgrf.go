package classify

import (
	"slices"

	// Packages
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// featureCount is the number of ids a NewGRF uses within one feature
type featureCount struct {
	feature reader.Feature
	count   int
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var featureSets = map[reader.Feature]schema.NewGRFSet{
	reader.FeatureAircraft:               schema.SetAircraft,
	reader.FeatureAirportTiles:           schema.SetAirport,
	reader.FeatureAirports:               schema.SetAirport,
	reader.FeatureBasecosts:              schema.SetEconomy,
	reader.FeatureBasesetBridges:         schema.SetBridge,
	reader.FeatureBasesetColourSchema:    schema.SetGUI,
	reader.FeatureBasesetCompanyProperty: schema.SetTown,
	reader.FeatureBasesetFaces:           schema.SetGUI,
	reader.FeatureBasesetFont:            schema.SetGUI,
	reader.FeatureBasesetGUI:             schema.SetGUI,
	reader.FeatureBasesetInfraAir:        schema.SetAirport,
	reader.FeatureBasesetInfraRail:       schema.SetRailInfra,
	reader.FeatureBasesetInfraRoad:       schema.SetRoadInfra,
	reader.FeatureBasesetInfraWater:      schema.SetWaterInfra,
	reader.FeatureBasesetLandscape:       schema.SetLandscape,
	reader.FeatureBasesetSignals:         schema.SetSignal,
	reader.FeatureBasesetTrees:           schema.SetLandscape,
	reader.FeatureBridges:                schema.SetBridge,
	reader.FeatureCanals:                 schema.SetWaterInfra,
	reader.FeatureCargos:                 schema.SetEconomy,
	reader.FeatureHouses:                 schema.SetTown,
	reader.FeatureIndustries:             schema.SetIndustry,
	reader.FeatureIndustryTiles:          schema.SetIndustry,
	reader.FeatureObjects:                schema.SetObject,
	reader.FeatureRailtypes:              schema.SetRailInfra,
	reader.FeatureRoadVehicles:           schema.SetRoadVehicle,
	reader.FeatureRoadStops:              schema.SetRoadInfra,
	reader.FeatureRoadtypes:              schema.SetRoadInfra,
	reader.FeatureShips:                  schema.SetShip,
	reader.FeatureSignals:                schema.SetSignal,
	reader.FeatureSnowline:               schema.SetLandscape,
	reader.FeatureStations:               schema.SetRailStation,
	reader.FeatureTownnames:              schema.SetTownname,
	reader.FeatureTrains:                 schema.SetTrain,
	reader.FeatureTramtypes:              schema.SetRoadInfra,
}

// When the first feature of a pair is used, the second is ignored. The
// order matters; a feature removed early no longer suppresses others.
var suppressions = [][2]reader.Feature{
	{reader.FeatureAircraft, reader.FeatureAirportTiles},
	{reader.FeatureAircraft, reader.FeatureAirports},
	{reader.FeatureAircraft, reader.FeatureBasesetInfraAir},
	{reader.FeatureAircraft, reader.FeatureCargos},
	{reader.FeatureAirports, reader.FeatureAirportTiles},
	{reader.FeatureAirports, reader.FeatureBasesetInfraAir},
	{reader.FeatureBasecosts, reader.FeatureCargos},
	{reader.FeatureBasesetInfraRail, reader.FeatureBasesetBridges},
	{reader.FeatureBasesetInfraRail, reader.FeatureBasesetInfraRoad},
	{reader.FeatureBasesetInfraRoad, reader.FeatureBasesetBridges},
	{reader.FeatureBasesetLandscape, reader.FeatureSnowline},
	{reader.FeatureBridges, reader.FeatureBasesetBridges},
	{reader.FeatureBridges, reader.FeatureBasesetInfraRail},
	{reader.FeatureBridges, reader.FeatureBasesetInfraRoad},
	{reader.FeatureBridges, reader.FeatureRailtypes},
	{reader.FeatureBridges, reader.FeatureRoadtypes},
	{reader.FeatureBridges, reader.FeatureTramtypes},
	{reader.FeatureCanals, reader.FeatureBasesetInfraWater},
	{reader.FeatureCanals, reader.FeatureRailtypes},
	{reader.FeatureCanals, reader.FeatureRoadtypes},
	{reader.FeatureCanals, reader.FeatureTramtypes},
	{reader.FeatureHouses, reader.FeatureBasesetInfraAir},
	{reader.FeatureHouses, reader.FeatureBasesetInfraRail},
	{reader.FeatureHouses, reader.FeatureBasesetInfraRoad},
	{reader.FeatureHouses, reader.FeatureBasesetInfraWater},
	{reader.FeatureHouses, reader.FeatureBridges},
	{reader.FeatureHouses, reader.FeatureCargos},
	{reader.FeatureIndustries, reader.FeatureCargos},
	{reader.FeatureIndustries, reader.FeatureIndustryTiles},
	{reader.FeatureIndustries, reader.FeatureRailtypes},
	{reader.FeatureIndustries, reader.FeatureRoadtypes},
	{reader.FeatureIndustries, reader.FeatureTramtypes},
	{reader.FeatureObjects, reader.FeatureBasecosts},
	{reader.FeatureRailtypes, reader.FeatureBasesetInfraRail},
	{reader.FeatureRailtypes, reader.FeatureBasesetSignals},
	{reader.FeatureRailtypes, reader.FeatureBridges},
	{reader.FeatureRoadVehicles, reader.FeatureBasesetInfraRail},
	{reader.FeatureRoadVehicles, reader.FeatureBasesetInfraRoad},
	{reader.FeatureRoadVehicles, reader.FeatureBridges},
	{reader.FeatureRoadVehicles, reader.FeatureCargos},
	{reader.FeatureRoadVehicles, reader.FeatureRoadtypes},
	{reader.FeatureRoadVehicles, reader.FeatureTramtypes},
	{reader.FeatureRoadtypes, reader.FeatureBasesetInfraRoad},
	{reader.FeatureRoadtypes, reader.FeatureBridges},
	{reader.FeatureRoadtypes, reader.FeatureTramtypes},
	{reader.FeatureShips, reader.FeatureBasesetInfraWater},
	{reader.FeatureShips, reader.FeatureCanals},
	{reader.FeatureShips, reader.FeatureCargos},
	{reader.FeatureSignals, reader.FeatureBasesetSignals},
	{reader.FeatureStations, reader.FeatureBasesetInfraAir},
	{reader.FeatureStations, reader.FeatureBasesetInfraRail},
	{reader.FeatureStations, reader.FeatureBasesetInfraRoad},
	{reader.FeatureStations, reader.FeatureBasesetInfraWater},
	{reader.FeatureTownnames, reader.FeatureBasesetInfraAir},
	{reader.FeatureTownnames, reader.FeatureBasesetInfraRail},
	{reader.FeatureTownnames, reader.FeatureBasesetInfraRoad},
	{reader.FeatureTownnames, reader.FeatureBasesetInfraWater},
	{reader.FeatureTownnames, reader.FeatureBasesetTrees},
	{reader.FeatureTownnames, reader.FeatureCanals},
	{reader.FeatureTownnames, reader.FeatureRailtypes},
	{reader.FeatureTrains, reader.FeatureBasesetBridges},
	{reader.FeatureTrains, reader.FeatureBasesetInfraRail},
	{reader.FeatureTrains, reader.FeatureBasesetInfraRoad},
	{reader.FeatureTrains, reader.FeatureBridges},
	{reader.FeatureTrains, reader.FeatureCargos},
	{reader.FeatureTrains, reader.FeatureRailtypes},
	{reader.FeatureTramtypes, reader.FeatureBridges},
}

var majorFeatures = []reader.Feature{
	reader.FeatureAircraft,
	reader.FeatureAirports,
	reader.FeatureBridges,
	reader.FeatureHouses,
	reader.FeatureIndustries,
	reader.FeatureRailtypes,
	reader.FeatureRoadVehicles,
	reader.FeatureRoadtypes,
	reader.FeatureShips,
	reader.FeatureSignals,
	reader.FeatureStations,
	reader.FeatureTownnames,
	reader.FeatureTrains,
}

// Canals and objects act more like base set features than anything else
var baseSetFeatures = []reader.Feature{
	reader.FeatureBasesetBridges,
	reader.FeatureBasesetColourSchema,
	reader.FeatureBasesetCompanyProperty,
	reader.FeatureBasesetFaces,
	reader.FeatureBasesetFont,
	reader.FeatureBasesetGUI,
	reader.FeatureBasesetInfraAir,
	reader.FeatureBasesetInfraRail,
	reader.FeatureBasesetInfraRoad,
	reader.FeatureBasesetInfraWater,
	reader.FeatureBasesetLandscape,
	reader.FeatureBasesetSignals,
	reader.FeatureBasesetTrees,
	reader.FeatureCanals,
	reader.FeatureObjects,
}

// Features which don't matter next to a major feature
var minorFeatures = []reader.Feature{
	reader.FeatureBasesetFont,
	reader.FeatureBasesetGUI,
	reader.FeatureObjects,
	reader.FeatureBasecosts,
	reader.FeatureBasesetCompanyProperty,
}

var vehicleFeatures = []reader.Feature{
	reader.FeatureTrains,
	reader.FeatureAircraft,
	reader.FeatureShips,
	reader.FeatureRoadVehicles,
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// NewGRF classifies the palette, resolution, sound effects and the kind of
// set of a NewGRF from the features it uses
func (c *Classifier) NewGRF(grf *reader.NewGRF) *schema.Classification {
	if grf == nil {
		return nil
	}
	counts := grf.Features.Counts()
	if len(counts) == 0 {
		return &schema.Classification{Set: schema.SetUnknown}
	}

	// More than half of the sprites decide the palette and resolution
	sprites := counts[reader.FeatureSprites]
	result := &schema.Classification{
		Palette:         schema.Palette8bpp,
		HasHighRes:      types.Ptr(counts[reader.FeatureSpritesZoomin]*2 > sprites),
		HasSoundEffects: types.Ptr(counts[reader.FeatureSoundEffects] > 0),
	}
	if counts[reader.FeatureSprites32bpp]*2 > sprites {
		result.Palette = schema.Palette32bpp
	}
	for _, feature := range []reader.Feature{reader.FeatureSoundEffects, reader.FeatureSprites, reader.FeatureSprites32bpp, reader.FeatureSpritesZoomin} {
		delete(counts, feature)
	}

	result.Set = c.set(counts)
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// set reduces the features to the one which describes the NewGRF best
func (c *Classifier) set(counts map[reader.Feature]int) schema.NewGRFSet {
	for _, pair := range suppressions {
		if _, exists := counts[pair[0]]; exists {
			delete(counts, pair[1])
		}
	}

	majors := present(counts, majorFeatures)
	if majors > 0 || has(counts, reader.FeatureCanals) {
		for _, feature := range minorFeatures {
			delete(counts, feature)
		}
	}

	// A major feature only wins from landscape when nothing else is left
	if majors > 0 && has(counts, reader.FeatureBasesetLandscape) && len(counts) == 2 {
		delete(counts, reader.FeatureBasesetLandscape)
	}

	if majors > 1 && majors == len(counts) {
		counts = dominant(counts, c.MajorDominance)
	}

	if baseSets := present(counts, baseSetFeatures); baseSets > 1 && baseSets == len(counts) {
		if reduced := dominant(counts, c.BaseSetDominance); len(reduced) == 1 {
			counts = reduced
		} else if landscape, exists := counts[reader.FeatureBasesetLandscape]; exists {
			counts = map[reader.Feature]int{reader.FeatureBasesetLandscape: landscape}
		}
	}

	if len(counts) > 1 {
		counts = dominant(counts, c.OverallDominance)
	}

	switch len(counts) {
	case 0:
		return schema.SetUnknown
	case 1:
		for feature := range counts {
			if set, exists := featureSets[feature]; exists {
				return set
			}
		}
		return schema.SetUnknown
	}
	for feature := range counts {
		if !slices.Contains(vehicleFeatures, feature) {
			return schema.SetMixed
		}
	}
	return schema.SetVehicle
}

// dominant returns only the most used feature when it is used more than
// ratio times as much as the runner-up, or the counts unchanged
func dominant(counts map[reader.Feature]int, ratio float64) map[reader.Feature]int {
	sorted := make([]featureCount, 0, len(counts))
	for feature, count := range counts {
		sorted = append(sorted, featureCount{feature, count})
	}
	slices.SortFunc(sorted, func(a, b featureCount) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return int(a.feature) - int(b.feature)
	})
	if len(sorted) > 1 && float64(sorted[0].count) > float64(sorted[1].count)*ratio {
		return map[reader.Feature]int{sorted[0].feature: sorted[0].count}
	}
	return counts
}

func present(counts map[reader.Feature]int, features []reader.Feature) int {
	var result int
	for _, feature := range features {
		if has(counts, feature) {
			result++
		}
	}
	return result
}

func has(counts map[reader.Feature]int, feature reader.Feature) bool {
	_, exists := counts[feature]
	return exists
}
