package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pyre-fw/pyre"
	"github.com/pyre-fw/pyre/internal/api"
	"github.com/pyre-fw/pyre/internal/authtoken"
	"github.com/pyre-fw/pyre/internal/config"
	"github.com/pyre-fw/pyre/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("pyre: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  pyre compile <file> [-strict] [-table filter] [-search dir,dir,...] [-out-v4 path] [-out-v6 path]
  pyre serve [-addr :8443] [-config pyre.yaml]
  pyre token issue -secret <key> [-expiry 1h]`)
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	strict := fs.Bool("strict", false, "promote warnings to fatal errors")
	table := fs.String("table", "filter", "default table for the top-level file")
	search := fs.String("search", "", "comma-separated additional @import search paths")
	outV4 := fs.String("out-v4", "", "write the v4 iptables-restore script here (default: stdout)")
	outV6 := fs.String("out-v6", "", "write the v6 iptables-restore script here (default: stdout)")
	// The input file may come before the flags; move it after them so
	// flag parsing does not stop at it.
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		args = append(append([]string{}, args[1:]...), args[0])
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("compile requires exactly one input file")
	}

	cfg := config.Default()
	cfg.Strict = *strict
	cfg.DefaultTable = *table
	if *search != "" {
		cfg.SearchPaths = append(cfg.SearchPaths, strings.Split(*search, ",")...)
	}

	log := logger.Discard()
	result, err := pyre.CompileFile(fs.Arg(0), cfg, log)
	if err != nil {
		return err
	}

	if err := writeLines(*outV4, result.V4); err != nil {
		return err
	}
	return writeLines(*outV6, result.V6)
}

func writeLines(path string, lines []string) error {
	text := strings.Join(lines, "\n")
	if len(lines) > 0 {
		text += "\n"
	}
	if path == "" {
		_, err := fmt.Print(text)
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8443", "address to listen on")
	configPath := fs.String("config", "", "YAML config file (defaults applied if empty)")
	secret := fs.String("secret", os.Getenv("PYRE_SHARED_SECRET"), "shared secret bearer tokens are signed/verified with")
	logLevel := fs.String("log-level", "info", "log level")
	logFormat := fs.String("log-format", "json", "log format (json or text)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("a shared secret is required: pass -secret or set PYRE_SHARED_SECRET")
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.FromYAML(*configPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return err
	}

	appLogger, err := logger.New(*logLevel, *logFormat)
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("starting pyre compile service")

	server := api.NewServer(api.ServerDeps{
		Config: cfg,
		Logger: appLogger,
		Issuer: authtoken.NewIssuer(*secret),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("listening", "address", *addr)
		errCh <- server.Listen(*addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("shutting down")
	return server.Shutdown()
}

func runToken(args []string) error {
	if len(args) < 1 || args[0] != "issue" {
		return fmt.Errorf("usage: pyre token issue -secret <key> [-expiry 1h]")
	}
	fs := flag.NewFlagSet("token issue", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("PYRE_SHARED_SECRET"), "shared secret to sign the token with")
	expiry := fs.Duration("expiry", authtoken.DefaultExpiry, "token lifetime")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *secret == "" {
		return fmt.Errorf("a shared secret is required: pass -secret or set PYRE_SHARED_SECRET")
	}

	issuer := authtoken.NewIssuer(*secret)
	token, err := issuer.Issue(authtoken.ScopeCompile, *expiry)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
