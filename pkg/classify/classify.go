package classify

import (
	"fmt"

	// Packages
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Thresholds are the business rules of the classifiers. Dominance values
// are ratios between the most used feature and the runner-up; terrain
// values are spreads between the lowest and highest common elevation.
type Thresholds struct {
	MajorDominance     float64 `yaml:"major-dominance" json:"major-dominance"`
	BaseSetDominance   float64 `yaml:"baseset-dominance" json:"baseset-dominance"`
	OverallDominance   float64 `yaml:"overall-dominance" json:"overall-dominance"`
	TerrainFlat        int     `yaml:"terrain-flat" json:"terrain-flat"`
	TerrainHilly       int     `yaml:"terrain-hilly" json:"terrain-hilly"`
	TerrainMountainous int     `yaml:"terrain-mountainous" json:"terrain-mountainous"`
}

// Classifier derives a classification from a decoded object
type Classifier struct {
	Thresholds
}

// Opt is an option for the classifier
type Opt func(*Classifier) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// DefaultThresholds returns the thresholds which have been in use since the
// classifiers were introduced
func DefaultThresholds() Thresholds {
	return Thresholds{
		MajorDominance:     4,
		BaseSetDominance:   2,
		OverallDominance:   10,
		TerrainFlat:        1,
		TerrainHilly:       4,
		TerrainMountainous: 9,
	}
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a classifier with default thresholds
func New(opts ...Opt) (*Classifier, error) {
	self := &Classifier{Thresholds: DefaultThresholds()}
	for _, fn := range opts {
		if err := fn(self); err != nil {
			return nil, err
		}
	}
	return self, nil
}

// WithThresholds replaces the thresholds
func WithThresholds(t Thresholds) Opt {
	return func(c *Classifier) error {
		if err := t.Validate(); err != nil {
			return err
		}
		c.Thresholds = t
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Validate returns an error if the thresholds cannot be applied
func (t Thresholds) Validate() error {
	switch {
	case t.MajorDominance < 1 || t.BaseSetDominance < 1 || t.OverallDominance < 1:
		return schema.ErrUnsupported.With("dominance thresholds must be at least 1")
	case t.TerrainFlat < 0 || t.TerrainHilly < t.TerrainFlat || t.TerrainMountainous < t.TerrainHilly:
		return schema.ErrUnsupported.With("terrain thresholds must be ascending")
	}
	return nil
}

// Classify returns the classification of the primary object of a package,
// or nil when the object has no classification or none can be derived
func (c *Classifier) Classify(obj reader.Object) *schema.Classification {
	switch obj := obj.(type) {
	case *reader.NewGRF:
		return c.NewGRF(obj)
	case *reader.Scenario:
		return c.Scenario(obj)
	case *reader.Heightmap:
		return c.Heightmap(obj)
	default:
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (t Thresholds) String() string {
	return types.Stringify(t)
}

func (c *Classifier) String() string {
	return fmt.Sprint("<classifier ", c.Thresholds.String(), ">")
}
