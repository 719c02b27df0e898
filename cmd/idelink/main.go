package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/config"
	"github.com/rexliu/idelink/pkg/core"
	"github.com/rexliu/idelink/pkg/discovery"
	"github.com/rexliu/idelink/pkg/ipc"
	"github.com/rexliu/idelink/pkg/logging"
	"github.com/rexliu/idelink/pkg/peer"
	"github.com/rexliu/idelink/pkg/storage/sqlite"
	gitvcs "github.com/rexliu/idelink/pkg/vcs/git"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "init":
		err = initCommand(os.Args[2:])
	case "version":
		fmt.Printf("idelink %s\n", version)
	case "discover":
		err = discoverCommand(ctx, os.Args[2:])
	case "open":
		err = openCommand(ctx, os.Args[2:])
	case "ping":
		err = pingCommand(ctx, os.Args[2:])
	case "history":
		err = historyCommand(ctx, os.Args[2:])
	case "diag":
		err = diagCommand(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: idelink <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Initialize a local profile (writes config.toml)")
	fmt.Println("  discover  List editor instances listening on the port range")
	fmt.Println("  open      Open a file in the editor serving the current workspace")
	fmt.Println("  ping      Measure round trip to one or all instances")
	fmt.Println("  history   Show files recently opened through the daemon journal")
	fmt.Println("  diag      Print profile configuration and workspace detection")
	fmt.Println("  version   Print CLI version")
}

type env struct {
	profileDir string
	cfg        *config.ProfileConfig
	logger     zerolog.Logger
	closer     io.Closer
}

func (e *env) Close() error { return e.closer.Close() }

func loadEnv(profileDir string, verbose bool) (*env, error) {
	cfg, err := config.LoadProfile(profileDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.DefaultProfile("default")
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	}
	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
	} else if logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	logger, closer, err := logging.Configure("idelink", profileDir, logCfg)
	if err != nil {
		return nil, err
	}
	return &env{profileDir: profileDir, cfg: cfg, logger: logger, closer: closer}, nil
}

func (e *env) discoverer() *discovery.Discoverer {
	prober := discovery.NewProber(core.IDEHeadless)
	prober.Host = e.cfg.IPC.Host
	prober.ConnectTimeout = e.cfg.IPC.ConnectTimeout.Duration
	prober.ReadTimeout = e.cfg.IPC.ReadTimeout.Duration
	prober.Logger = e.logger
	return &discovery.Discoverer{Prober: prober, BasePort: e.cfg.IPC.BasePort, PortCount: e.cfg.IPC.PortCount}
}

func (e *env) client() *ipc.Client {
	c := ipc.NewClient(core.IDEHeadless)
	c.Host = e.cfg.IPC.Host
	c.ConnectTimeout = e.cfg.IPC.ConnectTimeout.Duration
	c.Timeout = e.cfg.IPC.RequestTimeout.Duration
	return c
}

func currentWorkspace(override string) (string, error) {
	dir := override
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return gitvcs.WorktreeRoot(abs), nil
}

func initCommand(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	profilePath := fs.String("profile", "./_dev_profile", "Profile directory")
	name := fs.String("name", "dev", "Profile name")
	identity := fs.String("identity", core.IDEHeadless, "IDE identity reported by the daemon")
	force := fs.Bool("force", false, "Overwrite existing config if present")
	_ = fs.Parse(args)
	if err := os.MkdirAll(*profilePath, 0o700); err != nil {
		return err
	}
	configPath := filepath.Join(*profilePath, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}
	cfg := config.DefaultProfile(*name)
	cfg.IDE.Identity = *identity
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("initialized profile %s at %s\n", cfg.ProfileName, *profilePath)
	return nil
}

func discoverCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	workspace := fs.String("workspace", "", "Only list instances whose workspace overlaps this path")
	ide := fs.String("ide", "", "Glob matched against the instance ide tag")
	all := fs.Bool("all", false, "List every instance regardless of workspace")
	asJSON := fs.Bool("json", false, "Print JSON")
	verbose := fs.Bool("v", false, "Verbose logging")
	_ = fs.Parse(args)

	e, err := loadEnv(*profile, *verbose)
	if err != nil {
		return err
	}
	defer e.Close()

	q := discovery.Query{IDE: *ide}
	if !*all {
		if q.Workspace, err = currentWorkspace(*workspace); err != nil {
			return err
		}
	}
	found, err := e.discoverer().Discover(ctx, q)
	if err != nil {
		return err
	}
	if *asJSON {
		out, err := json.MarshalIndent(found, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	if len(found) == 0 {
		fmt.Println("no instances found")
		return nil
	}
	printInstances(os.Stdout, found)
	return nil
}

func openCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	workspace := fs.String("workspace", "", "Workspace used to select the instance (defaults to the enclosing git worktree)")
	line := fs.Int("line", 0, "1-based line to navigate to")
	column := fs.Int("column", 0, "1-based column to navigate to")
	ide := fs.String("ide", "", "Glob matched against the instance ide tag")
	fallback := fs.Bool("fallback", true, "Consider every instance when none matches the workspace")
	interactive := fs.Bool("choose", true, "Prompt when several instances match")
	verbose := fs.Bool("v", false, "Verbose logging")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: idelink open [options] <file>")
	}

	e, err := loadEnv(*profile, *verbose)
	if err != nil {
		return err
	}
	defer e.Close()

	ws, err := currentWorkspace(*workspace)
	if err != nil {
		return err
	}
	var chooser core.Chooser = core.FirstChooser{}
	if *interactive {
		chooser = &promptChooser{in: os.Stdin, out: os.Stderr}
	}
	opener := &peer.Opener{
		Discoverer: e.discoverer(),
		Selector:   core.NewSelector(core.NewSessionCache(), chooser),
		Client:     e.client(),
		Query:      discovery.Query{IDE: *ide},
		Fallback:   *fallback,
	}
	res, err := opener.Open(ctx, peer.OpenRequest{
		FilePath:  fs.Arg(0),
		Line:      *line,
		Column:    *column,
		Workspace: ws,
	})
	if err != nil {
		return err
	}
	fmt.Printf("opened in %s %s (port %d)\n", res.Instance.IDE, res.Instance.DisplayPath(), res.Instance.Port)
	return nil
}

func pingCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	port := fs.Int("port", 0, "Ping one port instead of every discovered instance")
	_ = fs.Parse(args)

	e, err := loadEnv(*profile, false)
	if err != nil {
		return err
	}
	defer e.Close()
	client := e.client()

	if *port != 0 {
		rtt, err := client.Ping(ctx, *port)
		if err != nil {
			return err
		}
		fmt.Printf("port %d responded in %s\n", *port, rtt.Round(time.Microsecond))
		return nil
	}
	found, err := e.discoverer().DiscoverAny(ctx, discovery.Query{})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return peer.ErrNoInstance
	}
	for _, inst := range found {
		rtt, err := client.Ping(ctx, inst.Port)
		if err != nil {
			fmt.Printf("port %d (%s): %v\n", inst.Port, inst.IDE, err)
			continue
		}
		fmt.Printf("port %d (%s) responded in %s\n", inst.Port, inst.IDE, rtt.Round(time.Microsecond))
	}
	return nil
}

func historyCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	limit := fs.Int("limit", 20, "Maximum records")
	_ = fs.Parse(args)

	e, err := loadEnv(*profile, false)
	if err != nil {
		return err
	}
	defer e.Close()

	dbPath := config.ResolvePath(*profile, e.cfg.Storage.DBPath)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("journal not found at %s: %w", dbPath, err)
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	records, err := store.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tFROM\tFILE\tRESULT")
	for _, rec := range records {
		result := "ok"
		if !rec.Success {
			result = rec.Error
		}
		location := rec.FilePath
		if rec.Line > 0 {
			location = fmt.Sprintf("%s:%d:%d", rec.FilePath, rec.Line, max(rec.Column, 1))
		}
		at := time.UnixMilli(rec.ReceivedAt).Format(time.DateTime)
		fmt.Fprintf(w, "%s\t%s/%d\t%s\t%s\n", at, rec.SourceIDE, rec.SourcePID, location, result)
	}
	return w.Flush()
}

func diagCommand(args []string) error {
	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	profile := fs.String("profile", "./_dev_profile", "Profile directory")
	_ = fs.Parse(args)
	cfg, err := config.LoadProfile(*profile)
	if err != nil {
		return err
	}
	fmt.Printf("Profile: %s\n", cfg.ProfileName)
	fmt.Printf("Config: %s\n", filepath.Join(*profile, config.FileName))
	fmt.Printf("Identity: %s %s\n", cfg.IDE.Identity, cfg.IDE.Version)
	fmt.Printf("Ports: %s:%d-%d\n", cfg.IPC.Host, cfg.IPC.BasePort, cfg.IPC.BasePort+cfg.IPC.PortCount-1)
	fmt.Printf("Timeouts: connect=%s read=%s request=%s\n",
		cfg.IPC.ConnectTimeout.Duration, cfg.IPC.ReadTimeout.Duration, cfg.IPC.RequestTimeout.Duration)
	fmt.Printf("DB Path: %s\n", config.ResolvePath(*profile, cfg.Storage.DBPath))
	if cfg.Logging.FilePath != "" {
		fmt.Printf("Log File: %s\n", config.ResolvePath(*profile, cfg.Logging.FilePath))
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	info, err := gitvcs.Describe(wd)
	if err != nil {
		fmt.Printf("Workspace: %s (no git worktree)\n", wd)
		return nil
	}
	fmt.Printf("Workspace: %s\n", info.Root)
	if info.Branch != "" {
		fmt.Printf("Branch: %s\n", info.Branch)
	}
	if info.Head != "" {
		fmt.Printf("Head: %s\n", info.Head)
	}
	return nil
}
