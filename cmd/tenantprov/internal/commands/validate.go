package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/tenantprov/internal/config"
)

type ValidateCmd struct {
	Config string `arg:"" help:"path to the batch file" type:"existingfile"`
}

func (v *ValidateCmd) Run(ctx context.Context, globals *Globals) error {
	_ = setupLogging(ctx, globals)

	cfg, err := config.Load(v.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Provisioner: %s (client %s, user %s)\n", cfg.Provisioner.URL, cfg.Provisioner.ClientID, cfg.Provisioner.Username)
	fmt.Printf("Identity:    %s (application %s)\n", cfg.Identity.URL, cfg.Identity.Application)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "APPLICATION\tURI")
	for _, app := range cfg.Applications {
		fmt.Fprintf(w, "%s\t%s\n", app.Name, app.URI)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TENANT\tNAME\tSCHEMA")
	for _, t := range cfg.Tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Identifier, t.Name, t.Schema)
	}
	w.Flush()

	fmt.Println()
	fmt.Printf("Each tenant gets admin %q reset, role %q and user %q.\n", cfg.TenantAdmin.User, cfg.OrgAdmin.Role, cfg.OrgAdmin.User)

	return nil
}
