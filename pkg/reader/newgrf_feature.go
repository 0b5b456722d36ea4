package reader

import (
	"encoding/json"
	"fmt"
	"sort"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Feature is a category of game content a NewGRF touches. Values up to
// 0xFF are the feature bytes used in the file; higher values are derived
// from other actions.
type Feature uint16

// Features maps every feature used by a NewGRF to the set of ids it uses
// within that feature.
type Features map[Feature]map[uint32]struct{}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	FeatureTrains        Feature = 0x00
	FeatureRoadVehicles  Feature = 0x01
	FeatureShips         Feature = 0x02
	FeatureAircraft      Feature = 0x03
	FeatureStations      Feature = 0x04
	FeatureCanals        Feature = 0x05
	FeatureBridges       Feature = 0x06
	FeatureHouses        Feature = 0x07
	FeatureIndustryTiles Feature = 0x09
	FeatureIndustries    Feature = 0x0A
	FeatureCargos        Feature = 0x0B
	FeatureSoundEffects  Feature = 0x0C
	FeatureAirports      Feature = 0x0D
	FeatureSignals       Feature = 0x0E
	FeatureObjects       Feature = 0x0F
	FeatureRailtypes     Feature = 0x10
	FeatureAirportTiles  Feature = 0x11
	FeatureRoadtypes     Feature = 0x12
	FeatureTramtypes     Feature = 0x13
	FeatureRoadStops     Feature = 0x14

	FeatureTownnames Feature = 0x100
	FeatureBasecosts Feature = 0x101
	FeatureSnowline  Feature = 0x102

	FeatureSprites       Feature = 0x200
	FeatureSprites32bpp  Feature = 0x201
	FeatureSpritesZoomin Feature = 0x202

	FeatureBasesetGUI             Feature = 0x300
	FeatureBasesetFont            Feature = 0x301
	FeatureBasesetColourSchema    Feature = 0x302
	FeatureBasesetFaces           Feature = 0x303
	FeatureBasesetLandscape       Feature = 0x304
	FeatureBasesetTrees           Feature = 0x305
	FeatureBasesetCompanyProperty Feature = 0x306
	FeatureBasesetBridges         Feature = 0x307
	FeatureBasesetInfraRail       Feature = 0x308
	FeatureBasesetSignals         Feature = 0x309
	FeatureBasesetInfraRoad       Feature = 0x30A
	FeatureBasesetInfraWater      Feature = 0x30B
	FeatureBasesetInfraAir        Feature = 0x30C
)

var featureNames = map[Feature]string{
	FeatureTrains:                 "trains",
	FeatureRoadVehicles:           "road-vehicles",
	FeatureShips:                  "ships",
	FeatureAircraft:               "aircraft",
	FeatureStations:               "stations",
	FeatureCanals:                 "canals",
	FeatureBridges:                "bridges",
	FeatureHouses:                 "houses",
	FeatureIndustryTiles:          "industry-tiles",
	FeatureIndustries:             "industries",
	FeatureCargos:                 "cargos",
	FeatureSoundEffects:           "sound-effects",
	FeatureAirports:               "airports",
	FeatureSignals:                "signals",
	FeatureObjects:                "objects",
	FeatureRailtypes:              "railtypes",
	FeatureAirportTiles:           "airport-tiles",
	FeatureRoadtypes:              "roadtypes",
	FeatureTramtypes:              "tramtypes",
	FeatureRoadStops:              "road-stops",
	FeatureTownnames:              "townnames",
	FeatureBasecosts:              "basecosts",
	FeatureSnowline:               "snowline",
	FeatureSprites:                "sprites",
	FeatureSprites32bpp:           "sprites-32bpp",
	FeatureSpritesZoomin:          "sprites-zoomin",
	FeatureBasesetGUI:             "baseset-gui",
	FeatureBasesetFont:            "baseset-font",
	FeatureBasesetColourSchema:    "baseset-colour-schema",
	FeatureBasesetFaces:           "baseset-faces",
	FeatureBasesetLandscape:       "baseset-landscape",
	FeatureBasesetTrees:           "baseset-trees",
	FeatureBasesetCompanyProperty: "baseset-company-property",
	FeatureBasesetBridges:         "baseset-bridges",
	FeatureBasesetInfraRail:       "baseset-infra-rail",
	FeatureBasesetSignals:         "baseset-signals",
	FeatureBasesetInfraRoad:       "baseset-infra-road",
	FeatureBasesetInfraWater:      "baseset-infra-water",
	FeatureBasesetInfraAir:        "baseset-infra-air",
}

// Action 5 types and the baseset feature their sprites replace
var action5Features = map[uint8]Feature{
	0x04: FeatureBasesetSignals,
	0x05: FeatureBasesetInfraRail,
	0x06: FeatureBasesetLandscape,
	0x07: FeatureBasesetGUI,
	0x08: FeatureBasesetInfraWater,
	0x09: FeatureBasesetInfraRoad,
	0x0A: FeatureBasesetColourSchema,
	0x0B: FeatureBasesetInfraRoad,
	0x0C: FeatureBasesetTrees,
	0x0D: FeatureBasesetLandscape,
	0x0E: FeatureBasesetSignals,
	0x0F: FeatureBasesetGUI,
	0x10: FeatureBasesetInfraAir,
	0x11: FeatureBasesetInfraRoad,
	0x12: FeatureBasesetInfraWater,
	0x13: FeatureBasesetGUI,
	0x14: FeatureBasesetGUI,
	0x15: FeatureBasesetGUI,
	0x16: FeatureBasesetInfraAir,
	0x17: FeatureBasesetInfraRail,
}

// Ranges of base sprites [first, last) replaced by action A, and the
// baseset feature they belong to
var actionARanges = []struct {
	first, last uint32
	feature     Feature
}{
	{0, 2, FeatureBasesetGUI},
	{2, 674, FeatureBasesetFont},
	{679, 774, FeatureBasesetGUI},
	{775, 805, FeatureBasesetColourSchema},
	{805, 990, FeatureBasesetFaces},
	{990, 1004, FeatureBasesetLandscape},
	{1004, 1251, FeatureBasesetInfraRail},
	{1301, 1309, FeatureBasesetInfraRail},
	{1313, 1420, FeatureBasesetInfraRoad},
	{1420, 1421, FeatureBasesetLandscape},
	{1576, 2010, FeatureBasesetTrees},
	{2365, 2429, FeatureBasesetLandscape},
	{2437, 2601, FeatureBasesetBridges},
	{2601, 2603, FeatureBasesetLandscape},
	{2603, 2633, FeatureBasesetCompanyProperty},
	{2633, 2692, FeatureBasesetInfraAir},
	{2692, 2724, FeatureBasesetInfraRoad},
	{2727, 2733, FeatureBasesetInfraWater},
	{3090, 3092, FeatureBasesetGUI},
	{3924, 4070, FeatureBasesetLandscape},
	{4070, 4077, FeatureBasesetInfraWater},
	{4077, 4090, FeatureBasesetGUI},
	{4090, 4297, FeatureBasesetLandscape},
	{4324, 4404, FeatureBasesetBridges},
	{4493, 4569, FeatureBasesetLandscape},
	{4790, 4793, FeatureBasesetGUI},
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// IsFileFeature returns true if the value is a feature byte which can
// appear in actions 0, 3 and 4
func IsFileFeature(v uint8) bool {
	_, exists := featureNames[Feature(v)]
	return exists
}

// Add the range of ids [first, first+n) to a feature
func (f Features) Add(feature Feature, first uint32, n int) {
	set, exists := f[feature]
	if !exists {
		set = make(map[uint32]struct{}, n)
		f[feature] = set
	}
	for i := 0; i < n; i++ {
		set[first+uint32(i)] = struct{}{}
	}
}

// Count returns the number of distinct ids used in a feature
func (f Features) Count(feature Feature) int {
	return len(f[feature])
}

// Has returns true if the feature is used
func (f Features) Has(feature Feature) bool {
	_, exists := f[feature]
	return exists
}

// Counts returns the number of distinct ids per feature
func (f Features) Counts() map[Feature]int {
	result := make(map[Feature]int, len(f))
	for feature, set := range f {
		result[feature] = len(set)
	}
	return result
}

func (f Features) MarshalJSON() ([]byte, error) {
	result := make(map[string]int, len(f))
	for feature, set := range f {
		result[feature.String()] = len(set)
	}
	return json.Marshal(result)
}

// Sorted returns the features in ascending order
func (f Features) Sorted() []Feature {
	result := make([]Feature, 0, len(f))
	for feature := range f {
		result = append(result, feature)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (f Feature) String() string {
	if name, exists := featureNames[f]; exists {
		return name
	}
	return fmt.Sprintf("feature-0x%02X", uint16(f))
}
