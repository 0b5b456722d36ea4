package main

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	// Packages
	classify "github.com/OpenTTD/bananas-api/pkg/classify"
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type DecodeCommand struct {
	Files []string `arg:"" type:"existingfile" help:"Files to decode"`
}

type decoded struct {
	Filename       string                 `json:"filename"`
	PackageType    schema.PackageType     `json:"package-type,omitempty"`
	MD5            string                 `json:"md5sum,omitempty"`
	UniqueID       string                 `json:"unique-id,omitempty"`
	Classification *schema.Classification `json:"classification,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *DecodeCommand) Run(app *Globals) error {
	classifier, err := classify.New(classify.WithThresholds(app.config.Classify))
	if err != nil {
		return err
	}

	result := make([]decoded, 0, len(cmd.Files))
	for _, path := range cmd.Files {
		file := decoded{Filename: filepath.Base(path)}
		if object, err := decode(path, reader.WithMaxPixels(app.config.MaxPixels)); err != nil {
			file.Error = err.Error()
		} else if object != nil {
			md5sum := object.Checksum()
			file.PackageType = object.PackageType()
			file.MD5 = hex.EncodeToString(md5sum[:])
			if identified, ok := object.(reader.Identified); ok {
				file.UniqueID = hex.EncodeToString(identified.UniqueID())
			}
			file.Classification = classifier.Classify(object)
		}
		app.logger.Debug("decoded", "filename", file.Filename, "type", file.PackageType, "error", file.Error)
		result = append(result, file)
	}
	return prettyJSON(result)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func decode(path string, opts ...reader.Opt) (reader.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return reader.Read(filepath.Base(path), f, opts...)
}

func prettyJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
