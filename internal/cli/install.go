package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aayushdutt/mcinstall/internal/core"
	"github.com/aayushdutt/mcinstall/internal/download"
	"github.com/aayushdutt/mcinstall/internal/install"
	"github.com/aayushdutt/mcinstall/internal/ui"
)

var installJSON bool

var installCmd = &cobra.Command{
	Use:   "install <version>",
	Short: "Download everything a version needs",
	Long:  "Resolve a version and download its client jar, libraries, natives, asset index, assets and logging config. Files already present and valid are kept. Use \"latest\" for the newest release.",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		tui := !plain && !installJSON && isatty.IsTerminal(os.Stdout.Fd())
		e, err := setup(cmd, tui)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.cfg.EnsureDirs(); err != nil {
			return err
		}
		store, err := e.newStore()
		if err != nil {
			return err
		}
		proxyURL, err := e.cfg.Proxy.URL()
		if err != nil {
			return err
		}

		dopts := e.cfg.DownloadOptions()
		dopts.Client = download.NewClient(proxyURL)
		dopts.Logger = e.log
		opts := install.Options{
			Config:    e.cfg,
			Source:    store,
			Platform:  core.CurrentPlatform(),
			Scheduler: download.NewScheduler(dopts),
			Logger:    e.log,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		id := args[0]
		if id == "latest" {
			if id, err = store.LatestRelease(ctx); err != nil {
				return err
			}
		}

		run := func(ctx context.Context, statusChan chan<- install.Status) (*install.Report, error) {
			return install.NewInstaller(opts, statusChan).InstallVersion(ctx, id)
		}

		var report *install.Report
		if tui {
			m := ui.NewInstallModel(id, run)
			if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
				return fmt.Errorf("running progress view: %w", err)
			}
			report, err = m.Result()
		} else {
			report, err = run(ctx, nil)
		}
		if report == nil {
			return err
		}

		out := cmd.OutOrStdout()
		if installJSON {
			if encErr := writeJSON(out, report); encErr != nil {
				return encErr
			}
		} else if !tui {
			printReport(out, report)
		}

		if err != nil {
			return err
		}
		if report.State == install.StateUnusable {
			return fmt.Errorf("%s is not usable: %d required files missing", report.VersionID, len(report.Missing()))
		}
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVar(&installJSON, "json", false, "Print the install report as JSON")
	rootCmd.AddCommand(installCmd)
}

// printReport writes the summary and every missing file.
func printReport(w io.Writer, r *install.Report) {
	fmt.Fprintln(w, r.Summary())
	if r.NativesExtracted > 0 {
		fmt.Fprintf(w, "  natives extracted: %d\n", r.NativesExtracted)
	}
	for _, f := range r.Missing() {
		line := fmt.Sprintf("  missing %s %s (%s", f.Group, f.Path, f.Reason)
		if f.Attempts > 0 {
			line += fmt.Sprintf(", %d %s", f.Attempts, plural(f.Attempts, "attempt"))
		}
		line += ")"
		if f.Err != "" {
			line += ": " + f.Err
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  took %s, %s transferred\n", r.Duration.Round(time.Millisecond), humanize.Bytes(uint64(r.Bytes())))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
