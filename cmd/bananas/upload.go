package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	// Packages
	manager "github.com/OpenTTD/bananas-api/pkg/manager"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	session "github.com/OpenTTD/bananas-api/pkg/session"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type UploadCommand struct {
	Files       []string `arg:"" type:"existingfile" help:"Files of the package, or archives containing them"`
	User        string   `default:"${USER}" help:"Name of the uploading user"`
	Version     string   `help:"Version of the package"`
	License     string   `help:"License of the package"`
	Name        string   `help:"Name of a new package"`
	Description string   `help:"Description of the package"`
	URL         string   `name:"url" help:"Website of the package"`
	Tags        []string `help:"Tags of the package"`
	Regions     []string `help:"Regions of the package"`
	Publish     bool     `help:"Publish the package when there are no errors"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *UploadCommand) Run(app *Globals) error {
	update, err := cmd.update()
	if err != nil {
		return err
	}

	m, err := app.Manager()
	if err != nil {
		return err
	}
	defer m.Close()

	status, err := m.Start(app.ctx, schema.User{Method: "local", ID: cmd.User, DisplayName: cmd.User})
	if err != nil {
		return err
	}
	for _, path := range cmd.Files {
		if err := attach(app, m, status.Token, path); err != nil {
			return err
		}
	}
	if _, err := m.Update(app.ctx, status.Token, update); err != nil {
		return err
	}
	if status, err = m.Validate(app.ctx, status.Token); err != nil {
		return err
	}
	if !cmd.Publish || status.Status == schema.StatusErrors {
		if err := prettyJSON(status); err != nil {
			return err
		}
		if status.Status == schema.StatusErrors {
			return fmt.Errorf("package has %d error(s)", len(status.Errors))
		}
		return nil
	}

	pkg, err := m.Publish(app.ctx, status.Token)
	if err != nil {
		return err
	}
	return errors.Join(prettyJSON(pkg), app.SaveIndex())
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func attach(app *Globals, m *manager.Manager, token, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	id, err := m.Attach(app.ctx, token, "", filepath.Base(path), f)
	if err != nil {
		return err
	}
	app.logger.Debug("attached", "path", path, "id", id)
	return nil
}

// update returns the fields given on the command line
func (cmd *UploadCommand) update() (*session.Update, error) {
	var update session.Update
	if cmd.Version != "" {
		update.Version = &cmd.Version
	}
	if cmd.License != "" {
		license, ok := schema.ParseLicense(cmd.License)
		if !ok {
			return nil, fmt.Errorf("unknown license %q", cmd.License)
		}
		update.License = &license
	}
	if cmd.Name != "" {
		update.Name = &cmd.Name
	}
	if cmd.Description != "" {
		update.Description = &cmd.Description
	}
	if cmd.URL != "" {
		update.URL = &cmd.URL
	}
	if cmd.Tags != nil {
		update.Tags = &cmd.Tags
	}
	if cmd.Regions != nil {
		update.Regions = &cmd.Regions
	}
	return &update, nil
}
