package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tebeka/atexit"

	"github.com/antibyte/espresso/pkg/auth"
	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/console"
	"github.com/antibyte/espresso/pkg/espresso"
	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/program"
	"github.com/antibyte/espresso/pkg/server"
	"github.com/antibyte/espresso/pkg/shared"
	"github.com/antibyte/espresso/pkg/store"
	tlsmanager "github.com/antibyte/espresso/pkg/tls"
)

const usage = `Please specify a .esp file to be run as an argument
Usage:
  espresso <file.esp>       run a program
  espresso serve            start the script server
  espresso set-key <key>    set the server access key
  espresso gen-cert [host]  write a self-signed certificate for [TLS]`

func main() {
	// Configuration comes before everything else, including the logger
	configPath := configuration.Path()
	if err := configuration.Initialize(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	atexit.Register(logger.Close)
	logger.ConfigInfo("configuration loaded from %s", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	atexit.Register(stop)

	atexit.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout))
}

// run dispatches the command line and returns the exit code.
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		fmt.Fprintln(out, "Done.")
		return 2
	}

	switch args[0] {
	case "serve":
		return serve(ctx, out)
	case "set-key":
		return setKey(args[1:], out)
	case "gen-cert":
		return genCert(args[1:], out)
	}
	return runFile(ctx, args[0], in, out)
}

// countingConsole counts emitted values for the run history.
type countingConsole struct {
	espresso.Console
	outputs int
}

func (c *countingConsole) Emit(text string) error {
	c.outputs++
	return c.Console.Emit(text)
}

func runFile(ctx context.Context, path string, in io.Reader, out io.Writer) int {
	fmt.Fprintf(out, "The input file is %s\n", path)

	lines, err := program.LoadFile(path)
	if err != nil {
		if errors.Is(err, program.ErrFileNotFound) {
			fmt.Fprintf(out, "The file %s doesn't exist.\n", path)
		} else {
			fmt.Fprintf(out, "Unable to read %s: %v\n", path, err)
		}
		fmt.Fprintln(out, "No program loaded.")
		fmt.Fprintln(out, "Done.")
		return 1
	}

	prompts, err := shared.NewPromptManager()
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		fmt.Fprintln(out, "Done.")
		return 1
	}

	con := &countingConsole{Console: console.NewTerminalConsole(in, out, prompts)}
	interp := espresso.NewInterpreter(lines, con)
	interp.SetStatementCache(configuration.GetBool("Interpreter", "statement_cache", true))

	var (
		rec    *store.RunRecord
		runErr error
	)
	if configuration.GetBool("Database", "record_cli_runs", false) {
		db, err := openDatabase()
		if err != nil {
			logger.Warn(logger.AreaDatabase, "run of %s not recorded: %v", path, err)
		} else {
			defer db.Close()
			if rec, err = db.Runs.Start(path, store.OriginCLI); err != nil {
				logger.Warn(logger.AreaDatabase, "run of %s not recorded: %v", path, err)
			} else {
				interp.SetRunID(rec.ID)
				defer func() {
					if err := db.Runs.Finish(rec.ID, con.outputs, runErr); err != nil {
						logger.Warn(logger.AreaDatabase, "%v", err)
					}
				}()
			}
		}
	}

	runErr = interp.Execute(ctx)
	if runErr != nil {
		console.NewReporter(out).Report(runErr)
	}
	fmt.Fprintln(out, "Done.")
	if runErr != nil {
		return 1
	}
	return 0
}

func openDatabase() (*store.Database, error) {
	return store.Open(
		configuration.GetString("Database", "path", "espresso.db"),
		configuration.GetDuration("Database", "busy_timeout", 5*time.Second),
	)
}

func serve(ctx context.Context, out io.Writer) int {
	db, err := openDatabase()
	if err != nil {
		fmt.Fprintf(out, "Database initialization failed: %v\n", err)
		return 1
	}
	defer db.Close()

	prompts, err := shared.NewPromptManager()
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	if configuration.GetString("Auth", "access_key_hash", "") == "" {
		fmt.Fprintln(out, "Warning: no access key configured, login is disabled. Use 'espresso set-key <key>'.")
	}
	fmt.Fprintf(out, "Serving on %s\n", configuration.GetString("Server", "listen", ":8080"))

	if err := server.New(db, prompts).ListenAndServe(ctx); err != nil {
		fmt.Fprintf(out, "Server error: %v\n", err)
		return 1
	}
	return 0
}

func setKey(args []string, out io.Writer) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(out, "Usage: espresso set-key <key>")
		return 2
	}
	hash, err := auth.HashAccessKey(args[0])
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}
	configuration.SetString("Auth", "access_key_hash", hash)
	if err := configuration.Save(); err != nil {
		fmt.Fprintf(out, "Error saving configuration: %v\n", err)
		return 1
	}
	logger.AuthInfo("access key changed")
	fmt.Fprintf(out, "Access key saved to %s\n", configuration.FilePath())
	return 0
}

func genCert(args []string, out io.Writer) int {
	host := "localhost"
	if len(args) > 0 {
		host = args[0]
	}

	config := tlsmanager.LoadTLSConfig()
	config.EnableTLS = false
	config.EnableLetsEncrypt = false
	manager, err := tlsmanager.NewTLSManagerWithConfig(config)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}
	if err := manager.GenerateSelfSignedCert(host); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Certificate for %s written to %s and %s\n", host, config.CertFile, config.KeyFile)
	return 0
}
