package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"dualmind/internal/domain"
)

// GUIAction opens the desktop window.
func GUIAction(c *cli.Context) error {
	app, err := newApp(c)
	if err != nil {
		return err
	}
	if err := app.Run(); err != nil {
		return cli.Exit("run app: "+err.Error(), 1)
	}
	return nil
}

// TranscribeAction runs one YouTube job in the terminal.
func TranscribeAction(c *cli.Context) error {
	return runJob(c, domain.JobKindYouTube, "a YouTube URL")
}

// AnalyzeAction runs one PDF job in the terminal.
func AnalyzeAction(c *cli.Context) error {
	return runJob(c, domain.JobKindPDF, "a PDF path")
}

func runJob(c *cli.Context, kind domain.JobKind, want string) error {
	input := strings.TrimSpace(c.Args().First())
	if input == "" || c.NArg() > 1 {
		return cli.Exit(fmt.Sprintf("expected exactly one argument: %s", want), 2)
	}

	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out io.Writer = c.App.Writer
	dest := strings.TrimSpace(c.String("output"))
	if dest != "" {
		out = nil
	}

	job, err := app.RunHeadless(ctx, kind, input, out, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), exitCode(err))
	}

	if dest != "" {
		if err := app.Exporter.Export(job, dest); err != nil {
			return cli.Exit("export: "+err.Error(), 1)
		}
		fmt.Fprintf(c.App.ErrWriter, "wrote %s\n", dest)
	}
	return nil
}

// exitCode maps a job failure to the process status.
func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrorKindCancelled:
		return 130
	case domain.ErrorKindUnsupported:
		return 2
	default:
		return 1
	}
}

// DiagnosticsAction prints the diagnostics report as YAML.
func DiagnosticsAction(c *cli.Context) error {
	app, err := newApp(c)
	if err != nil {
		return err
	}

	report := app.GetDiagnostics()
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return cli.Exit("encode report: "+err.Error(), 1)
	}
	if err := enc.Close(); err != nil {
		return cli.Exit("encode report: "+err.Error(), 1)
	}
	if report.HasFailures {
		return cli.Exit("", 1)
	}
	return nil
}

// ModelsAction lists catalog models and where they are cached.
func ModelsAction(c *cli.Context) error {
	app, err := newApp(c)
	if err != nil {
		return err
	}
	settings, err := app.GetSettings()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTIVE\tID\tNAME\tSIZE\tCACHED")
	for _, m := range app.GetWhisperModels() {
		active := ""
		if settings.ModelPath == "" && m.ID == settings.ModelSize {
			active = "*"
		}
		cached := "-"
		if m.Downloaded {
			cached = m.LocalPath
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", active, m.ID, m.Name, m.SizeLabel, cached)
	}
	return w.Flush()
}

// DownloadModelAction fetches one catalog model and selects it.
func DownloadModelAction(c *cli.Context) error {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return cli.Exit("expected a model id, see `dualmind models`", 2)
	}
	app, err := newApp(c)
	if err != nil {
		return err
	}

	settings, err := app.DownloadWhisperModel(id)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "model %s ready in %s\n", settings.ModelSize, settings.ModelDir)
	return nil
}
