package classify

import (
	"testing"

	// Packages
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

func newgrf(counts map[reader.Feature]int) *reader.NewGRF {
	features := make(reader.Features)
	for feature, n := range counts {
		features.Add(feature, 0, n)
	}
	return &reader.NewGRF{Features: features}
}

func classifier(t *testing.T) *Classifier {
	c, err := New()
	require.NoError(t, err)
	return c
}

////////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_NewGRF_Set(t *testing.T) {
	tests := []struct {
		name   string
		counts map[reader.Feature]int
		set    schema.NewGRFSet
	}{
		{"Empty", nil, schema.SetUnknown},
		{"SpritesOnly", map[reader.Feature]int{reader.FeatureSprites: 10}, schema.SetUnknown},
		{"TrainsDominate", map[reader.Feature]int{reader.FeatureTrains: 50, reader.FeatureRailtypes: 10}, schema.SetTrain},
		{"TrainsSuppressCargos", map[reader.Feature]int{reader.FeatureTrains: 2, reader.FeatureCargos: 20}, schema.SetTrain},
		{"Vehicles", map[reader.Feature]int{reader.FeatureTrains: 10, reader.FeatureShips: 10}, schema.SetVehicle},
		{"MajorNotDominant", map[reader.Feature]int{reader.FeatureHouses: 10, reader.FeatureIndustries: 5}, schema.SetMixed},
		{"MajorDominant", map[reader.Feature]int{reader.FeatureHouses: 41, reader.FeatureIndustries: 10}, schema.SetTown},
		{"MinorDropped", map[reader.Feature]int{reader.FeatureShips: 3, reader.FeatureBasesetGUI: 30, reader.FeatureObjects: 30}, schema.SetShip},
		{"LandscapeLoses", map[reader.Feature]int{reader.FeatureStations: 3, reader.FeatureBasesetLandscape: 20}, schema.SetRailStation},
		{"LandscapeStays", map[reader.Feature]int{reader.FeatureStations: 3, reader.FeatureBasesetLandscape: 20, reader.FeatureCargos: 3}, schema.SetMixed},
		{"BaseSetDominant", map[reader.Feature]int{reader.FeatureBasesetTrees: 30, reader.FeatureBasesetGUI: 10}, schema.SetLandscape},
		{"BaseSetLandscape", map[reader.Feature]int{reader.FeatureBasesetLandscape: 10, reader.FeatureBasesetGUI: 10}, schema.SetLandscape},
		{"BaseSetMixed", map[reader.Feature]int{reader.FeatureBasesetFaces: 10, reader.FeatureBasesetGUI: 10}, schema.SetMixed},
		{"Overall", map[reader.Feature]int{reader.FeatureHouses: 110, reader.FeatureBasesetFaces: 10}, schema.SetTown},
		{"RoadStops", map[reader.Feature]int{reader.FeatureRoadStops: 4}, schema.SetRoadInfra},
		{"Townnames", map[reader.Feature]int{reader.FeatureTownnames: 1}, schema.SetTownname},
	}
	c := classifier(t)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := c.Classify(newgrf(test.counts))
			require.NotNil(t, result)
			assert.Equal(t, test.set, result.Set)
		})
	}
}

func Test_NewGRF_Sprites(t *testing.T) {
	assert := assert.New(t)

	result := classifier(t).NewGRF(newgrf(map[reader.Feature]int{
		reader.FeatureSprites:       10,
		reader.FeatureSprites32bpp:  6,
		reader.FeatureSpritesZoomin: 5,
		reader.FeatureSoundEffects:  1,
		reader.FeatureTrains:        1,
	}))
	require.NotNil(t, result)
	assert.Equal(schema.Palette32bpp, result.Palette)
	require.NotNil(t, result.HasHighRes)
	assert.False(*result.HasHighRes)
	require.NotNil(t, result.HasSoundEffects)
	assert.True(*result.HasSoundEffects)
	assert.Equal(schema.SetTrain, result.Set)
	assert.Equal([]string{"32bpp", "train", "has-sound-effects"}, result.Values())
}

func Test_NewGRF_Thresholds(t *testing.T) {
	// A lower dominance makes houses win where the default does not
	thresholds := DefaultThresholds()
	thresholds.MajorDominance = 1.5
	c, err := New(WithThresholds(thresholds))
	require.NoError(t, err)

	result := c.NewGRF(newgrf(map[reader.Feature]int{reader.FeatureHouses: 10, reader.FeatureIndustries: 5}))
	assert.Equal(t, schema.SetTown, result.Set)

	thresholds.TerrainHilly = 0
	_, err = New(WithThresholds(thresholds))
	assert.ErrorIs(t, err, schema.ErrUnsupported)
}

func Test_Heightmap(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		levels  map[int]uint64
		result  *schema.Classification
		isEmpty bool
	}{
		{"VeryFlat", 100, 100, map[int]uint64{0: 5000, 20: 5000}, &schema.Classification{
			Resolution: schema.ResolutionLow, Shape: schema.ShapeSquare, TerrainType: schema.TerrainVeryFlat,
		}, false},
		{"Hilly", 512, 256, map[int]uint64{16: 65536, 100: 65536}, &schema.Classification{
			Resolution: schema.ResolutionNormal, Shape: schema.ShapeRectangle, TerrainType: schema.TerrainHilly,
		}, false},
		{"Mountainous", 2048, 512, map[int]uint64{1: 500000, 255: 548576}, &schema.Classification{
			Resolution: schema.ResolutionHigh, Shape: schema.ShapeNarrow, TerrainType: schema.TerrainMountainous,
		}, false},
		{"OneHill", 100, 100, map[int]uint64{0: 0, 40: 9999, 250: 1}, &schema.Classification{
			Resolution: schema.ResolutionLow, Shape: schema.ShapeSquare, TerrainType: schema.TerrainVeryFlat,
		}, false},
		{"Sea", 100, 100, map[int]uint64{0: 10000}, nil, true},
	}
	c := classifier(t)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			heightmap := &reader.Heightmap{Width: test.width, Height: test.height}
			for level, n := range test.levels {
				heightmap.Histogram[level] = n
			}
			result := c.Classify(heightmap)
			if test.isEmpty {
				assert.Nil(t, result)
			} else {
				assert.Equal(t, test.result, result)
			}
		})
	}
}

func Test_Scenario(t *testing.T) {
	assert := assert.New(t)
	c := classifier(t)

	arctic := reader.LandscapeArctic
	scenario := &reader.Scenario{MapSize: [2]uint32{256, 256}, Landscape: &arctic}
	scenario.Histogram[0] = 30000
	scenario.Histogram[2] = 20000
	scenario.Histogram[5] = 10000
	scenario.Histogram[9] = 5536

	result := c.Classify(scenario)
	assert.Equal(&schema.Classification{
		Size:        schema.SizeNormal,
		Shape:       schema.ShapeSquare,
		TerrainType: schema.TerrainHilly,
		Climate:     schema.ClimateSubArctic,
	}, result)

	// Sizes
	for _, test := range []struct {
		x, y uint32
		size schema.Size
	}{
		{64, 64, schema.SizeSmall},
		{512, 64, schema.SizeSmall},
		{1024, 1024, schema.SizeLarge},
		{2048, 1024, schema.SizeHuge},
	} {
		scenario := &reader.Scenario{MapSize: [2]uint32{test.x, test.y}}
		scenario.Histogram[1] = uint64(test.x) * uint64(test.y)
		result := c.Scenario(scenario)
		require.NotNil(t, result)
		assert.Equal(test.size, result.Size)
		assert.Empty(result.Climate)
	}

	// Completely at sea level
	empty := &reader.Scenario{MapSize: [2]uint32{64, 64}}
	empty.Histogram[0] = 64 * 64
	assert.Nil(c.Classify(empty))
}

func Test_Classify_Other(t *testing.T) {
	assert.Nil(t, classifier(t).Classify(&reader.File{Type: schema.SoundFiles}))
}
