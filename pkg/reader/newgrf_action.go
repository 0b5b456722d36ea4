package reader

import (
	"encoding/binary"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// actionFunc handles one pseudo sprite action. It returns the number of
// following sprites which belong to the action, and whether the next
// action is modified by an action 6.
type actionFunc func(d *newgrfDecoder, r *binreader.Reader, size int, action6 bool) (int, bool, error)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var actions map[uint8]actionFunc

func init() {
	actions = map[uint8]actionFunc{
		0x00: (*newgrfDecoder).action0,
		0x01: (*newgrfDecoder).action1,
		0x03: (*newgrfDecoder).action3,
		0x04: (*newgrfDecoder).action4,
		0x05: (*newgrfDecoder).action5,
		0x06: (*newgrfDecoder).action6,
		0x08: (*newgrfDecoder).action8,
		0x0A: (*newgrfDecoder).actionA,
		0x0F: (*newgrfDecoder).actionF,
		0x11: (*newgrfDecoder).action11,
		0x12: (*newgrfDecoder).action12,
		0x14: (*newgrfDecoder).action14,
	}
}

const (
	// Feature byte of the global settings in action 0
	featureGlobalSettings = 0x08

	// Action 14 node types
	a14End    = 0
	a14Branch = 'C'
	a14Binary = 'B'
	a14Text   = 'T'

	// Deepest action 14 branch nesting accepted
	a14MaxDepth = 16
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (d *newgrfDecoder) readPseudo(pseudo []byte, action6 bool) (int, bool, error) {
	r := binreader.NewBytes(pseudo)
	action, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	if fn, exists := actions[action]; exists {
		return fn(d, r, len(pseudo), action6)
	}
	return 0, false, nil
}

func (d *newgrfDecoder) feature(r *binreader.Reader) (uint8, error) {
	feature, err := r.Uint8()
	if err != nil {
		return 0, err
	}
	if mapped, exists := d.featureMap[feature]; exists {
		return uint8(mapped), nil
	}
	return feature, nil
}

// Properties
func (d *newgrfDecoder) action0(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	feature, err := d.feature(r)
	if err != nil {
		return 0, false, err
	}
	props, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	ids, err := r.Uint8()
	if err != nil || ids == 0 {
		return 0, false, err
	}
	first, err := r.ExtByte()
	if err != nil {
		return 0, false, err
	}
	if IsFileFeature(feature) {
		d.Features.Add(Feature(feature), uint32(first), int(ids))
	}
	if feature != featureGlobalSettings {
		return 0, false, nil
	}

	// Global settings: only basecosts and snowline are of interest, but
	// every known property has to be stepped over to reach them
	n := int64(ids)
	for i := 0; i < int(props); i++ {
		prop, err := r.Uint8()
		if err != nil {
			return 0, false, err
		}
		switch prop {
		case 0x08:
			err = r.Skip(n)
			d.Features.Add(FeatureBasecosts, uint32(first), int(ids))
		case 0x10:
			err = r.Skip(12 * 32 * n)
			d.Features.Add(FeatureSnowline, uint32(first), int(ids))
		case 0x15:
			err = r.Skip(n)
		case 0x0A, 0x0C, 0x0F:
			err = r.Skip(2 * n)
		case 0x09, 0x0B, 0x0D, 0x0E, 0x12, 0x16, 0x17:
			err = r.Skip(4 * n)
		case 0x11:
			err = r.Skip(8 * n)
		case 0x13, 0x14:
			err = skipTextList(r)
		default:
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}

// Sprite sets
func (d *newgrfDecoder) action1(r *binreader.Reader, size int, _ bool) (int, bool, error) {
	if _, err := r.Uint8(); err != nil {
		return 0, false, err
	}
	sets, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	numSets := uint16(sets)

	// Extended format; a zero set count with nothing following is an empty
	// action which is tolerated
	if numSets == 0 && size-3 >= 3 {
		if _, err := r.ExtByte(); err != nil {
			return 0, false, err
		}
		if numSets, err = r.ExtByte(); err != nil {
			return 0, false, err
		}
	}
	entries, err := r.ExtByte()
	if err != nil {
		return 0, false, err
	}
	return int(numSets) * int(entries), false, nil
}

// Feature ids
func (d *newgrfDecoder) action3(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	feature, err := d.feature(r)
	if err != nil {
		return 0, false, err
	}
	n, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	if n == 0 || n >= 0x80 || !IsFileFeature(feature) {
		return 0, false, nil
	}
	for i := 0; i < int(n); i++ {
		id, err := r.ExtByte()
		if err != nil {
			return 0, false, err
		}
		d.Features.Add(Feature(feature), uint32(id), 1)
	}
	return 0, false, nil
}

// Text
func (d *newgrfDecoder) action4(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	feature, err := d.feature(r)
	if err != nil {
		return 0, false, err
	}
	lang, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	if !IsFileFeature(feature) || lang >= 0x80 {
		return 0, false, nil
	}
	n, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	first, err := r.ExtByte()
	if err != nil {
		return 0, false, err
	}
	d.Features.Add(Feature(feature), uint32(first), int(n))
	return 0, false, nil
}

// Replacement of new base sprites. Each type gets its own fake sprite id
// range so replacements of different types do not collide.
func (d *newgrfDecoder) action5(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	kind, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	skip, err := r.ExtByte()
	if err != nil {
		return 0, false, err
	}
	var first uint32
	if kind >= 0x80 {
		v, err := r.ExtByte()
		if err != nil {
			return 0, false, err
		}
		first = uint32(v)
		kind -= 0x80
	}
	first += 0x10000 * (uint32(kind) + 1)
	if feature, exists := action5Features[kind]; exists {
		d.Features.Add(feature, first, int(skip))
	}
	return int(skip), false, nil
}

// Modify next action
func (d *newgrfDecoder) action6(_ *binreader.Reader, _ int, _ bool) (int, bool, error) {
	return 0, true, nil
}

// GRF identity
func (d *newgrfDecoder) action8(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	version, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	id, err := r.Read(4)
	if err != nil {
		return 0, false, err
	}
	name, err := r.CString()
	if err != nil {
		return 0, false, err
	}
	description, err := r.CString()
	if err != nil {
		return 0, false, err
	}
	d.GRFVersion = version
	d.ID = id
	d.Name = DecodeString(name)
	d.Description = DecodeString(description)
	return 0, false, nil
}

// Replacement of original base sprites. When modified by an action 6 the
// sprite numbers cannot be trusted, so only the count is used.
func (d *newgrfDecoder) actionA(r *binreader.Reader, _ int, action6 bool) (int, bool, error) {
	sets, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	var skip int
	for i := 0; i < int(sets); i++ {
		n, err := r.Uint8()
		if err != nil {
			return 0, false, err
		}
		first, err := r.Uint16()
		if err != nil {
			return 0, false, err
		}
		skip += int(n)
		if action6 {
			continue
		}
		for id := uint32(first); id < uint32(first)+uint32(n); id++ {
			if feature, exists := actionAFeature(id); exists {
				d.Features.Add(feature, id, 1)
			}
		}
	}
	return skip, false, nil
}

// Town names
func (d *newgrfDecoder) actionF(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	id, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	if id >= 0x80 {
		d.Features.Add(FeatureTownnames, uint32(id-0x80), 1)
	}
	return 0, false, nil
}

// Sound effects
func (d *newgrfDecoder) action11(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	n, err := r.Uint16()
	if err != nil {
		return 0, false, err
	}
	d.Features.Add(FeatureSoundEffects, 0, int(n))
	return int(n), false, nil
}

// Font glyphs
func (d *newgrfDecoder) action12(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	defs, err := r.Uint8()
	if err != nil {
		return 0, false, err
	}
	var skip int
	for i := 0; i < int(defs); i++ {
		font, err := r.Uint8()
		if err != nil {
			return 0, false, err
		}
		n, err := r.Uint8()
		if err != nil {
			return 0, false, err
		}
		first, err := r.Uint16()
		if err != nil {
			return 0, false, err
		}
		d.Features.Add(FeatureBasesetFont, uint32(first)+0x10000*(uint32(font)+0x100), int(n))
		skip += int(n)
	}
	return skip, false, nil
}

// Static information
func (d *newgrfDecoder) action14(r *binreader.Reader, _ int, _ bool) (int, bool, error) {
	_, err := d.readA14(r, nil, 0)
	return 0, false, err
}

// readA14 reads the nodes of one branch. It returns false when an unknown
// node type was met, after which the rest of the action is ignored.
func (d *newgrfDecoder) readA14(r *binreader.Reader, path []byte, depth int) (bool, error) {
	if depth > a14MaxDepth {
		return false, nil
	}
	for {
		kind, err := r.Uint8()
		if err != nil {
			return false, err
		} else if kind == a14End {
			return true, nil
		}

		id, err := r.Read(4)
		if err != nil {
			return false, err
		}
		subpath := append(append(make([]byte, 0, len(path)+4), path...), id...)

		switch kind {
		case a14Branch:
			if ok, err := d.readA14(r, subpath, depth+1); err != nil || !ok {
				return false, err
			}
		case a14Binary:
			if err := d.readA14Binary(r, string(subpath)); err != nil {
				return false, err
			}
		case a14Text:
			if err := d.readA14Text(r, string(subpath)); err != nil {
				return false, err
			}
		default:
			return false, nil
		}
	}
}

func (d *newgrfDecoder) readA14Binary(r *binreader.Reader, path string) error {
	size, err := r.Uint16()
	if err != nil {
		return err
	}
	data, err := r.Read(int(size))
	if err != nil {
		return err
	}

	switch {
	case path == "FIDMFTID" && d.nextFeatureMap != nil:
		// Feature id assigned to a named feature by the previous FIDMNAME
		if len(data) < 1 {
			return schema.ErrTruncated
		}
		d.featureMap[data[0]] = *d.nextFeatureMap
		d.nextFeatureMap = nil
	case path == "INFOVRSN" && size >= 4:
		v := binary.LittleEndian.Uint32(data)
		d.Version = &v
	case path == "INFOMINV" && size >= 4:
		v := binary.LittleEndian.Uint32(data)
		d.MinCompatibleVersion = &v
	}
	return nil
}

func (d *newgrfDecoder) readA14Text(r *binreader.Reader, path string) error {
	lang, err := r.Uint8()
	if err != nil {
		return err
	}
	raw, err := r.CString()
	if err != nil {
		return err
	}
	text := DecodeString(raw)

	if path == "FIDMNAME" && text == "road_stops" {
		feature := FeatureRoadStops
		d.nextFeatureMap = &feature
	}

	// Only en_US, en_GB and the fallback language are used
	if lang != 0x00 && lang != 0x01 && lang != 0x7F {
		return nil
	}
	switch path {
	case "INFONAME":
		d.Name = text
	case "INFODESC":
		d.Description = text
	case "INFOURL_":
		d.URL = text
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS - HELPERS

func actionAFeature(id uint32) (Feature, bool) {
	for _, r := range actionARanges {
		if id >= r.first && id < r.last {
			return r.feature, true
		}
	}
	return 0, false
}

// skipTextList skips a list of (id, string) pairs terminated by a zero id
func skipTextList(r *binreader.Reader) error {
	for {
		if id, err := r.Uint8(); err != nil {
			return err
		} else if id == 0 {
			return nil
		}
		if _, err := r.CString(); err != nil {
			return err
		}
	}
}
