package reader

import (
	"encoding/hex"
	"unicode/utf8"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// tableField is one entry of a table chunk header
type tableField struct {
	kind uint8
	key  string
}

type tableRecord map[string]any

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	fieldList   = 0x10
	fieldString = 10
	fieldStruct = 11
)

// Savegame versions at which the layout of old-style records changed
const (
	svNewGRFVersion     = 151
	svPATSLandscape     = 97
	svCompetitorSpeed   = 110
	svDifficultyLevel   = 178
	svSubsidyDuration   = 292
	svOPTSDifficulty    = 4
	svAIVersion         = 108
	svAIIsRandom        = 136
	patsDifficultyBytes = 19
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS - TABLE

func readTableHeader(header []byte) ([]tableField, error) {
	var fields []tableField
	r := binreader.NewBytes(header)
	for {
		kind, err := r.Uint8()
		if err != nil {
			return nil, err
		} else if kind == 0 {
			// Headers of nested structs follow; they are not needed
			return fields, nil
		}
		key, err := r.GammaString()
		if err != nil {
			return nil, err
		}
		fields = append(fields, tableField{kind, string(key)})
	}
}

// readTableRecord decodes the fields of a record. Decoding stops at the
// first nested struct, as none of the fields needed follow one.
func readTableRecord(fields []tableField, data []byte) (tableRecord, error) {
	result := make(tableRecord, len(fields))
	r := binreader.NewBytes(data)
	for _, field := range fields {
		kind := field.kind &^ fieldList
		switch {
		case kind == fieldStruct:
			return result, nil
		case kind == fieldString:
			value, err := r.GammaString()
			if err != nil {
				return nil, err
			}
			result[field.key] = string(value)
		case field.kind&fieldList != 0:
			n, _, err := r.Gamma()
			if err != nil {
				return nil, err
			}
			values := make([]any, 0, min(n, chunkSlice))
			for range n {
				value, err := readScalar(r, kind)
				if err != nil {
					return nil, err
				}
				values = append(values, value)
			}
			result[field.key] = values
		default:
			value, err := readScalar(r, kind)
			if err != nil {
				return nil, err
			}
			result[field.key] = value
		}
	}
	return result, nil
}

// readScalar reads a number, returned as int64 or uint64
func readScalar(r *binreader.Reader, kind uint8) (any, error) {
	switch kind {
	case 1:
		v, err := r.Int8()
		return int64(v), err
	case 2:
		v, err := r.Uint8()
		return uint64(v), err
	case 3:
		v, err := r.Int16BE()
		return int64(v), err
	case 4, 9:
		v, err := r.Uint16BE()
		return uint64(v), err
	case 5:
		v, err := r.Int32BE()
		return int64(v), err
	case 6:
		v, err := r.Uint32BE()
		return uint64(v), err
	case 7:
		return r.Int64BE()
	case 8:
		return r.Uint64BE()
	default:
		return nil, schema.ErrMalformed.Withf("unknown table field type %d", kind)
	}
}

func (t tableRecord) int(key string) (int64, bool) {
	switch v := t[key].(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

func (t tableRecord) string(key string) (string, bool) {
	v, ok := t[key].(string)
	return v, ok
}

func (t tableRecord) bytes(key string) ([]byte, bool) {
	list, ok := t[key].([]any)
	if !ok {
		return nil, false
	}
	result := make([]byte, 0, len(list))
	for _, v := range list {
		if b, ok := v.(uint64); !ok || b > 0xFF {
			return nil, false
		} else {
			result = append(result, byte(b))
		}
	}
	return result, true
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS - ITEMS

// readItem interprets a record of a table chunk
func (d *scenarioDecoder) readItem(tag string, item tableRecord) error {
	switch tag {
	case "MAPS":
		x, okx := item.int("dim_x")
		y, oky := item.int("dim_y")
		if !okx || !oky {
			return schema.ErrMalformed.With("chunk MAPS is missing the map size")
		}
		d.setMapSize(uint32(x), uint32(y))
	case "NGRF":
		grfid, _ := item.int("ident.grfid")
		md5sum, _ := item.bytes("ident.md5sum")
		filename, _ := item.string("filename")
		newgrf := ScenarioNewGRF{
			GRFID:    uint32(grfid),
			MD5:      hex.EncodeToString(md5sum),
			Filename: filename,
		}
		if version, ok := item.int("version"); ok {
			v := uint32(version)
			newgrf.Version = &v
		}
		d.NewGRFs = append(d.NewGRFs, newgrf)
	case "PATS":
		if landscape, ok := item.int("game_creation.landscape"); ok {
			return d.setLandscape(landscape)
		}
	case "AIPL", "GSDT":
		name, _ := item.string("name")
		version, ok := item.int("version")
		if !ok {
			version = -1
		}
		isRandom, _ := item.int("is_random")
		d.addScript(tag, name, version, isRandom != 0)
	}
	return nil
}

// readItemOld interprets a record of a chunk without a header, whose layout
// depends on the savegame version
func (d *scenarioDecoder) readItemOld(tag string, data []byte) error {
	r := binreader.NewBytes(data)
	version := d.SavegameVersion

	switch tag {
	case "MAPS":
		x, err := r.Uint32BE()
		if err != nil {
			return err
		}
		y, err := r.Uint32BE()
		if err != nil {
			return err
		}
		d.setMapSize(x, y)
	case "NGRF":
		filename, err := r.GammaString()
		if err != nil {
			return err
		} else if !utf8.Valid(filename) {
			return schema.ErrInvalidEncoding.With("NewGRF filename is not valid UTF-8")
		}
		grfid, err := r.Uint32BE()
		if err != nil {
			return err
		}
		md5sum, err := r.Read(16)
		if err != nil {
			return err
		}
		newgrf := ScenarioNewGRF{
			GRFID:    grfid,
			MD5:      hex.EncodeToString(md5sum),
			Filename: string(filename),
		}
		if version >= svNewGRFVersion {
			v, err := r.Uint32BE()
			if err != nil {
				return err
			}
			newgrf.Version = &v
		}
		d.NewGRFs = append(d.NewGRFs, newgrf)
	case "PATS":
		// Older savegames store the landscape in OPTS
		if version < svPATSLandscape {
			return nil
		}
		skip := patsDifficultyBytes
		if version >= svSubsidyDuration {
			skip += 2
		}
		if version < svDifficultyLevel {
			skip += 1
		}
		if version < svCompetitorSpeed {
			skip += 2
		}
		// Town names
		skip += 1
		if err := r.Skip(int64(skip)); err != nil {
			return err
		}
		landscape, err := r.Uint8()
		if err != nil {
			return err
		}
		return d.setLandscape(int64(landscape))
	case "OPTS":
		// Custom difficulty, then difficulty level, currency, units, town names
		skip := 18*2 + 4
		if version < svOPTSDifficulty {
			skip = 17*2 + 4
		}
		if err := r.Skip(int64(skip)); err != nil {
			return err
		}
		landscape, err := r.Uint8()
		if err != nil {
			return err
		}
		return d.setLandscape(int64(landscape))
	case "AIPL", "GSDT":
		return d.readScriptOld(tag, r)
	}
	return nil
}

func (d *scenarioDecoder) readScriptOld(tag string, r *binreader.Reader) error {
	name, err := r.GammaString()
	if err != nil {
		return err
	}
	// Settings
	if _, err := r.GammaString(); err != nil {
		return err
	}

	version, isRandom := int64(-1), uint8(0)
	if tag == "GSDT" || d.SavegameVersion >= svAIVersion {
		v, err := r.Int32BE()
		if err != nil {
			return err
		}
		version = int64(v)
	}
	if tag == "GSDT" || d.SavegameVersion >= svAIIsRandom {
		if isRandom, err = r.Uint8(); err != nil {
			return err
		}
	}
	d.addScript(tag, string(name), version, isRandom != 0)
	return nil
}

func (d *scenarioDecoder) setMapSize(x, y uint32) {
	d.MapSize = [2]uint32{x, y}
	d.hasMapSize = true
}

func (d *scenarioDecoder) setLandscape(v int64) error {
	if v < int64(LandscapeTemperate) || v > int64(LandscapeToyland) {
		return schema.ErrMalformed.Withf("invalid landscape %d", v)
	}
	landscape := Landscape(v)
	d.Landscape = &landscape
	return nil
}

// addScript records a script the savegame uses. Empty slots and scripts
// picked at random are not dependencies.
func (d *scenarioDecoder) addScript(tag, name string, version int64, isRandom bool) {
	if name == "" || isRandom {
		return
	}
	contentType := schema.AI
	if tag == "GSDT" {
		contentType = schema.GameScript
	}
	d.Scripts = append(d.Scripts, ScenarioScript{
		ContentType: contentType,
		Name:        name,
		Version:     version,
	})
}
