package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantprov/internal/store"
)

type StatusCmd struct {
	RunID         string             `arg:"" name:"run" optional:"" help:"run ID to show tenants for; lists recent runs when omitted"`
	Limit         int                `help:"number of runs to list" default:"20"`
	History       string             `help:"show every state a tenant of the run went through"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)

	runStore, err := s.PostgresStore.open(ctx)
	if err != nil {
		return err
	}
	defer runStore.Close()

	return s.show(ctx, runStore, os.Stdout)
}

// show writes the part of the journal selected by the flags to out.
func (s *StatusCmd) show(ctx context.Context, runStore store.RunStore, out io.Writer) error {
	if s.RunID == "" {
		return s.listRuns(ctx, runStore, out)
	}

	runID, err := uuid.Parse(s.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", s.RunID, err)
	}

	if s.History != "" {
		return s.showHistory(ctx, runStore, runID, out)
	}

	return s.showRun(ctx, runStore, runID, out)
}

func (s *StatusCmd) listRuns(ctx context.Context, runStore store.RunStore, out io.Writer) error {
	runs, err := runStore.ListRuns(ctx, s.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No provisioning runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tTENANTS\tSTARTED\tFINISHED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", run.RunID, run.Status, run.Tenants, formatTime(run.StartedAt), formatTime(run.FinishedAt))
	}
	return w.Flush()
}

func (s *StatusCmd) showRun(ctx context.Context, runStore store.RunStore, runID uuid.UUID, out io.Writer) error {
	run, err := runStore.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	tenants, err := runStore.ListTenants(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	fmt.Fprintf(out, "Run %s: %s (%d of %d tenants reached)\n\n", run.RunID, run.Status, len(tenants), run.Tenants)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSTATE\tUPDATED\tERROR")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.TenantID, t.State, formatTime(t.UpdatedAt), t.Error)
	}
	return w.Flush()
}

func (s *StatusCmd) showHistory(ctx context.Context, runStore store.RunStore, runID uuid.UUID, out io.Writer) error {
	history, err := runStore.History(ctx, runID, s.History)
	if err != nil {
		return fmt.Errorf("failed to get tenant history: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tAT\tERROR")
	for _, rec := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.State, formatTime(rec.UpdatedAt), rec.Error)
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
