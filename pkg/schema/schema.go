package schema

import (
	"encoding/json"
	"strings"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// PackageType tags a decoded file. The first ten values are also the
// content types of a published package; the remainder only ever appear as
// companions of a primary file.
type PackageType string

// ContentType is the type of a published package.
type ContentType = PackageType

// License of a published version.
type License string

// Availability of a published version.
type Availability string

// Status of the last validation of a session.
type Status string

// User identifies the owner of an upload session.
type User struct {
	Method      string `json:"method"`
	ID          string `json:"id"`
	DisplayName string `json:"display-name,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	SchemaName = "bananas"
)

const (
	AI                PackageType = "ai"
	AILibrary         PackageType = "ai-library"
	BaseGraphics      PackageType = "base-graphics"
	BaseMusic         PackageType = "base-music"
	BaseSounds        PackageType = "base-sounds"
	GameScript        PackageType = "game-script"
	GameScriptLibrary PackageType = "game-script-library"
	Heightmap         PackageType = "heightmap"
	NewGRF            PackageType = "newgrf"
	Scenario          PackageType = "scenario"

	ScriptFiles    PackageType = "scripts"
	ScriptMainFile PackageType = "main-script"
	SoundFiles     PackageType = "sounds"
	MusicFiles     PackageType = "music"
)

const (
	LicenseGPLv2         License = "GPL v2"
	LicenseGPLv3         License = "GPL v3"
	LicenseLGPLv2_1      License = "LGPL v2.1"
	LicenseCC0v1_0       License = "CC-0 v1.0"
	LicenseCCBYv3_0      License = "CC-BY v3.0"
	LicenseCCBYSAv3_0    License = "CC-BY-SA v3.0"
	LicenseCCBYNCSAv3_0  License = "CC-BY-NC-SA v3.0"
	LicenseCCBYNCNDv3_0  License = "CC-BY-NC-ND v3.0"
	LicenseCustom        License = "Custom"
	AvailabilityNewGames Availability = "new-games"
	AvailabilitySavegame Availability = "savegames-only"
)

const (
	StatusOK       Status = "OK"
	StatusWarnings Status = "Warnings"
	StatusErrors   Status = "Errors"
)

var (
	contentTypes = []ContentType{AI, AILibrary, BaseGraphics, BaseMusic, BaseSounds, GameScript, GameScriptLibrary, Heightmap, NewGRF, Scenario}
	licenses     = []License{LicenseGPLv2, LicenseGPLv3, LicenseLGPLv2_1, LicenseCC0v1_0, LicenseCCBYv3_0, LicenseCCBYSAv3_0, LicenseCCBYNCSAv3_0, LicenseCCBYNCNDv3_0, LicenseCustom}
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ContentTypes returns the package types which can be published
func ContentTypes() []ContentType {
	return contentTypes
}

// IsContentType returns true if the package type can be published on its own
func (t PackageType) IsContentType() bool {
	for _, ct := range contentTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// ParseLicense returns a license from its display value
func ParseLicense(v string) (License, bool) {
	for _, l := range licenses {
		if strings.EqualFold(string(l), strings.TrimSpace(v)) {
			return l, true
		}
	}
	return "", false
}

// FullID returns the identifier used to key sessions by user
func (u User) FullID() string {
	return u.Method + "/" + u.ID
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (u User) String() string {
	return types.Stringify(u)
}

// UnmarshalJSON accepts only known license values
func (l *License) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if license, ok := ParseLicense(v); !ok {
		return ErrUnsupported.Withf("unknown license %q", v)
	} else {
		*l = license
	}
	return nil
}
