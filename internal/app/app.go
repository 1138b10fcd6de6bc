// Package app implements the CLI surface: a single binary dispatching
// five subcommands (rebuild, update, fix, search, serve) over a shared
// snapshot file.
package app

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/bgpkit/wayback-rpki/internal/source"
)

// bootstrapURL is the public snapshot mirror `--bootstrap` downloads
// from to seed a fresh install.
const bootstrapURL = "https://spaces.bgpkit.org/broker/roas_trie.bin.gz"

// App is the top-level CLI orchestrator: global flags/config plus
// dispatch to one of five subcommands.
type App struct {
	zerolog.Logger

	F *pflag.FlagSet
	K *koanf.Koanf

	Crawler *source.Crawler
	Parser  *source.Parser

	repo map[string]func(args []string) error
}

// New builds an App with its global flag set and subcommand table wired.
func New() *App {
	a := &App{K: koanf.New(".")}

	a.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	})

	a.F = pflag.NewFlagSet("wayback-rpki", pflag.ContinueOnError)
	f := a.F
	f.SortFlags = false
	f.Usage = a.Usage
	f.SetInterspersed(false)
	f.StringP("log", "l", "info", "log level (debug/info/warn/error/disabled)")
	f.String("path", "roas_trie.bin.gz", "path to the archive snapshot file")
	f.Bool("bootstrap", false, "download the public snapshot if --path does not exist")
	f.String("env", "", "optional dotenv-style file to load configuration from")

	a.Parser = source.NewParser()

	a.repo = map[string]func(args []string) error{
		"rebuild": a.cmdRebuild,
		"update":  a.cmdUpdate,
		"fix":     a.cmdFix,
		"search":  a.cmdSearch,
		"serve":   a.cmdServe,
	}
	a.Crawler = source.NewCrawler(&a.Logger)

	return a
}

// Usage prints the top-level usage screen to stderr.
func (a *App) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: wayback-rpki [OPTIONS] <command> [ARGS...]\n\nOptions:\n")
	a.F.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	cmds := make([]string, 0, len(a.repo))
	for cmd := range a.repo {
		cmds = append(cmds, cmd)
	}
	slices.Sort(cmds)
	for _, cmd := range cmds {
		fmt.Fprintf(os.Stderr, "  %s\n", cmd)
	}
}

// Run parses global flags, applies logging/env configuration, and
// dispatches to the requested subcommand.
func (a *App) Run(args []string) error {
	if err := a.configure(args); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	rest := a.F.Args()
	if len(rest) == 0 {
		a.Usage()
		return fmt.Errorf("wayback-rpki needs a command")
	}

	cmd, cmdArgs := rest[0], rest[1:]
	handler, ok := a.repo[cmd]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmd)
	}

	if err := a.ensureBootstrap(); err != nil {
		a.Warn().Err(err).Msg("bootstrap download failed, continuing with an empty archive")
	}

	return handler(cmdArgs)
}

func (a *App) configure(args []string) error {
	if err := a.F.Parse(args); err != nil {
		return err
	}

	if envPath := a.F.Lookup("env").Value.String(); envPath != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(envPath), dotenv.Parser()); err != nil {
			return fmt.Errorf("load --env file %s: %w", envPath, err)
		}
		if err := a.K.Merge(k); err != nil {
			return err
		}
	}

	if err := a.K.Load(posflag.Provider(a.F, ".", a.K), nil); err != nil {
		return err
	}

	if ll := a.K.String("log"); ll != "" {
		lvl, err := zerolog.ParseLevel(ll)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(lvl)
	}

	return nil
}

// SnapshotPath returns the configured snapshot file path.
func (a *App) SnapshotPath() string {
	return a.K.String("path")
}

// BackupDestinations unions WAYBACK_BACKUP_TO (from the process
// environment, or else from the --env file) with any backup-to key loaded
// from the --env file. The serve subcommand's own --backup-to flag is not
// read here; cmdServe appends it.
func (a *App) BackupDestinations() []string {
	var dests []string
	if v := os.Getenv("WAYBACK_BACKUP_TO"); v != "" {
		dests = append(dests, v)
	} else if v := a.K.String("WAYBACK_BACKUP_TO"); v != "" {
		dests = append(dests, v)
	}
	if v := a.K.Strings("backup-to"); len(v) > 0 {
		dests = append(dests, v...)
	}
	return dests
}

func (a *App) ensureBootstrap() error {
	path := a.SnapshotPath()
	if !a.K.Bool("bootstrap") {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	a.Info().Str("url", bootstrapURL).Str("path", path).Msg("bootstrapping snapshot")
	resp, err := http.Get(bootstrapURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bootstrap download: status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}
