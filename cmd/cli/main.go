package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/oakensoft/tenantgate/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		CheckAdmin commands.CheckAdminCmd `cmd:"" help:"Check whether a user is a tenant administrator"`
		Consent    commands.ConsentCmd    `cmd:"" help:"Drive the admin consent and configuration handshake"`
		SaveConfig commands.SaveConfigCmd `cmd:"" help:"Save a tenant's SharePoint URL configuration"`
		GetConfig  commands.GetConfigCmd  `cmd:"" help:"Show a tenant's stored configuration"`
		Debug      bool                   `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
