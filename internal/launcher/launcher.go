// Package launcher is the command line entry shared by the desktop build and
// the standalone binary.
package launcher

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"dualmind/internal/bootstrap"
	"dualmind/internal/config"
	"dualmind/internal/logging"
)

// assetsKey stores the embedded frontend in cli.App metadata.
const assetsKey = "assets"

// NewApp builds the command tree. assets may be nil to serve ./frontend.
func NewApp(assets fs.FS) *cli.App {
	return &cli.App{
		Name:  "dualmind",
		Usage: "transcribe YouTube videos and analyse PDF documents locally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "settings",
				Usage:   "settings file path",
				Value:   config.DefaultSettingsPath(),
				EnvVars: []string{config.EnvPrefix + "SETTINGS"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				EnvVars: []string{config.EnvPrefix + "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "text or json",
				Value:   "text",
				EnvVars: []string{config.EnvPrefix + "LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before flags are resolved",
				Value: ".env",
			},
		},
		Metadata: map[string]interface{}{assetsKey: assets},
		Before:   before,
		Action:   GUIAction,
		Commands: []*cli.Command{
			{
				Name:      "transcribe",
				Usage:     "transcribe one YouTube video",
				ArgsUsage: "<url>",
				Flags:     []cli.Flag{outputFlag()},
				Action:    TranscribeAction,
			},
			{
				Name:      "analyze",
				Usage:     "analyse one PDF document",
				ArgsUsage: "<file.pdf>",
				Flags:     []cli.Flag{outputFlag()},
				Action:    AnalyzeAction,
			},
			{
				Name:   "diagnostics",
				Usage:  "check external tools, model and directories",
				Action: DiagnosticsAction,
			},
			{
				Name:   "models",
				Usage:  "list whisper models",
				Action: ModelsAction,
				Subcommands: []*cli.Command{
					{
						Name:      "download",
						Usage:     "download a model and make it active",
						ArgsUsage: "<id>",
						Action:    DownloadModelAction,
					},
				},
			},
		},
	}
}

// Run executes the command tree against args.
func Run(args []string, assets fs.FS) error {
	return NewApp(assets).Run(args)
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "write the result to this file instead of stdout",
	}
}

// before loads the dotenv file and installs the process logger.
func before(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cli.Exit("load env file: "+err.Error(), 1)
	}
	logging.Setup(logging.Options{
		Level:  envOr(c, "log-level"),
		Format: envOr(c, "log-format"),
	})
	return nil
}

// envOr prefers an explicit flag, then the environment. Flag EnvVars are
// resolved before the dotenv file loads, so its values are read here.
func envOr(c *cli.Context, flag string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	key := map[string]string{
		"log-level":  config.EnvPrefix + "LOG_LEVEL",
		"log-format": config.EnvPrefix + "LOG_FORMAT",
		"settings":   config.EnvPrefix + "SETTINGS",
	}[flag]
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return c.String(flag)
}

// newApp builds the application for a command.
func newApp(c *cli.Context) (*bootstrap.App, error) {
	var assets fs.FS
	if v, ok := c.App.Metadata[assetsKey].(fs.FS); ok {
		assets = v
	}
	app, err := bootstrap.New(bootstrap.Options{
		SettingsPath: envOr(c, "settings"),
		Assets:       assets,
		Logger:       slog.Default(),
	})
	if err != nil {
		return nil, cli.Exit("bootstrap app: "+err.Error(), 1)
	}
	return app, nil
}
