package cli

import (
	"context"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/driftfm/driftfm/pkg/cmd/history"
	"github.com/driftfm/driftfm/pkg/cmd/play"
	"github.com/driftfm/driftfm/pkg/cmd/serve"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("driftfm", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "driftfm [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newPlayCommand(),
			newServeCommand(),
			newHistoryCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "driftfm version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newPlayCommand() *ffcli.Command {
	cmd := "play"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &play.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai api key")
	fs.StringVar(&cfg.Model, "model", "", "openai chat model")
	fs.StringVar(&cfg.Voice, "voice", "", "tts voice")
	fs.StringVar(&cfg.PersonaFile, "persona", "", "dj persona yaml file (optional)")
	fs.IntVar(&cfg.Tracks, "tracks", 0, "playlist length (default 5)")

	fs.StringVar(&cfg.SpotifyID, "spotify-id", "", "spotify client id")
	fs.StringVar(&cfg.SpotifySecret, "spotify-secret", "", "spotify client secret")

	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type for history (sqlite, mysql, postgres, empty to disable)")
	fs.StringVar(&cfg.DBConn, "db-conn", "driftfm.db", "path for sqlite, dsn for mysql or postgres")

	fs.StringVar(&cfg.Prompt, "prompt", "", "mood prompt for the session")
	fs.Float64Var(&cfg.CommentaryChance, "commentary-chance", 0, "probability of commentary between tracks (default 0.6, negative to disable)")
	fs.DurationVar(&cfg.TrackCeiling, "ceiling", 0, "max time per track before forcing the next one (default 30s)")
	fs.Float64Var(&cfg.Volume, "volume", 0, "music volume 0..1 (default 0.4, negative for silent)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("driftfm %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("DRIFTFM"),
		},
		ShortHelp: "play an interactive dj session in the terminal",
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return play.Run(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &serve.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai api key")
	fs.StringVar(&cfg.Model, "model", "", "openai chat model")
	fs.StringVar(&cfg.Voice, "voice", "", "tts voice")
	fs.StringVar(&cfg.PersonaFile, "persona", "", "dj persona yaml file (optional)")
	fs.IntVar(&cfg.Tracks, "tracks", 0, "playlist length (default 5)")

	fs.StringVar(&cfg.SpotifyID, "spotify-id", "", "spotify client id")
	fs.StringVar(&cfg.SpotifySecret, "spotify-secret", "", "spotify client secret")

	fs.StringVar(&cfg.Addr, "addr", "localhost:1984", "listen address")
	fs.BoolVar(&cfg.Open, "open", false, "open the ui in the browser")
	fs.Float64Var(&cfg.Volume, "volume", 0, "music volume 0..1 (default 0.4, negative for silent)")
	fs.DurationVar(&cfg.Ceiling, "ceiling", 0, "max time per track before forcing the next one (default 30s)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("driftfm %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("DRIFTFM"),
		},
		ShortHelp: "serve the web presentation",
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return serve.Serve(ctx, cfg)
		},
	}
}

func newHistoryCommand() *ffcli.Command {
	cmd := "history"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &history.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "driftfm.db", "path for sqlite, dsn for mysql or postgres")
	fs.IntVar(&cfg.Limit, "limit", 50, "max plays to list")
	fs.StringVar(&cfg.Format, "format", "text", "output format (text, csv)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("driftfm %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("DRIFTFM"),
		},
		ShortHelp: "list recent plays",
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return history.Run(ctx, cfg)
		},
	}
}
