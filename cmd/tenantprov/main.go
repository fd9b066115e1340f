package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/tenantprov/cmd/tenantprov/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Provision commands.ProvisionCmd `cmd:"" help:"Provision a batch of applications and tenants"`
		Validate  commands.ValidateCmd  `cmd:"" help:"Validate a batch file and print the plan"`
		Status    commands.StatusCmd    `cmd:"" help:"Show provisioning runs from the journal"`
		Sandbox   commands.SandboxCmd   `cmd:"" help:"Run the fake provisioning platform"`
		Debug     bool                  `help:"Enable debug mode." env:"TENANTPROV_DEBUG"`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("tenantprov"),
		kong.Description("Provision tenants, their applications and administrators on the platform."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
