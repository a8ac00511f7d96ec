// Package server runs Espresso programs for remote clients. Programs are
// stored and listed over a small HTTP API; runs happen over a websocket that
// carries output, prompts and input.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antibyte/espresso/pkg/auth"
	"github.com/antibyte/espresso/pkg/configuration"
	"github.com/antibyte/espresso/pkg/console"
	"github.com/antibyte/espresso/pkg/espresso"
	"github.com/antibyte/espresso/pkg/logger"
	"github.com/antibyte/espresso/pkg/program"
	"github.com/antibyte/espresso/pkg/shared"
	"github.com/antibyte/espresso/pkg/store"
	tlsmanager "github.com/antibyte/espresso/pkg/tls"
)

// InlineProgramName is recorded for runs of source sent with the run message.
const InlineProgramName = "<inline>"

// Server serves the HTTP API and websocket consoles.
type Server struct {
	db        *store.Database
	prompts   *shared.PromptManager
	clients   *ClientManager
	validator *MessageValidator
	upgrader  websocket.Upgrader
}

// New creates a server over db.
func New(db *store.Database, prompts *shared.PromptManager) *Server {
	s := &Server{
		db:        db,
		prompts:   prompts,
		clients:   NewClientManager(),
		validator: NewMessageValidator(maxProgramSize()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
	return s
}

func maxProgramSize() int {
	return configuration.GetInt("Server", "max_program_size_kb", 256) * 1024
}

// allowedOrigins returns [Server] allowed_origins as a list.
func allowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(configuration.GetString("Server", "allowed_origins", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// checkOrigin accepts requests without Origin (non-browser clients still need
// a token), origins listed in allowed_origins, or the server's own host when
// the list is empty.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	allowed := allowedOrigins()
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		if err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
	}
	for _, a := range allowed {
		if origin == a {
			return true
		}
	}

	logger.SecurityWarn("websocket request from disallowed origin rejected: %s", origin)
	return false
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", auth.HandleLogin)

	mux.HandleFunc("GET /api/programs", auth.RequireToken(s.handleListPrograms))
	mux.HandleFunc("GET /api/programs/{name}", auth.RequireToken(s.handleGetProgram))
	mux.HandleFunc("PUT /api/programs/{name}", auth.RequireToken(s.handlePutProgram))
	mux.HandleFunc("DELETE /api/programs/{name}", auth.RequireToken(s.handleDeleteProgram))

	mux.HandleFunc("GET /api/runs", auth.RequireToken(s.handleListRuns))
	mux.HandleFunc("GET /api/runs/{id}", auth.RequireToken(s.handleGetRun))

	mux.HandleFunc("GET /ws", auth.RequireToken(s.HandleWebSocket))
	return mux
}

// ListenAndServe serves until ctx is cancelled. With [TLS] enabled it serves
// HTTPS and, when needed, a plain HTTP listener for ACME and redirects.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tm, err := tlsmanager.NewTLSManager()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              configuration.GetString("Server", "listen", ":8080"),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var httpSrv *http.Server

	errCh := make(chan error, 2)
	if tm.IsEnabled() {
		srv.Addr = ":" + tm.GetHTTPSPort()
		srv.TLSConfig = tm.GetTLSConfig()
		if tm.NeedsHTTPServer() {
			httpSrv = &http.Server{
				Addr:              ":" + tm.GetHTTPPort(),
				Handler:           tm.GetHTTPHandler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Info(logger.AreaServer, "HTTP listener on %s", httpSrv.Addr)
				errCh <- httpSrv.ListenAndServe()
			}()
		}
		go func() {
			logger.Info(logger.AreaServer, "HTTPS listener on %s", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
		}()
	} else {
		go func() {
			logger.Info(logger.AreaServer, "listening on %s", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			s.shutdown(srv, httpSrv)
			return fmt.Errorf("server stopped: %w", err)
		}
	}
	s.shutdown(srv, httpSrv)
	return nil
}

func (s *Server) shutdown(servers ...*http.Server) {
	s.clients.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn(logger.AreaServer, "shutdown of %s: %v", srv.Addr, err)
		}
	}
	logger.Info(logger.AreaServer, "server stopped")
}

// resolveProgram returns the name and lines a run message refers to.
func (s *Server) resolveProgram(msg *shared.Message) (string, []string, error) {
	if msg.Program != "" {
		lines, err := s.db.Programs.Load(msg.Program)
		if err != nil {
			return "", nil, err
		}
		return msg.Program, lines, nil
	}
	return InlineProgramName, program.Parse(msg.Content), nil
}

// execute runs lines for client and records the run.
func (s *Server) execute(ctx context.Context, client *Client, name string, lines []string) (string, error) {
	var runID string
	rec, err := s.db.Runs.Start(name, store.OriginServer)
	if err != nil {
		logger.Error(logger.AreaDatabase, "run of %s not recorded: %v", name, err)
	} else {
		runID = rec.ID
	}
	logger.Info(logger.AreaServer, "client %s: run %s of %s (%d lines)", client.id, runID, name, len(lines))

	con := newWebSocketConsole(ctx, client, s.prompts, runID)
	interp := espresso.NewInterpreter(lines, con)
	interp.SetStatementCache(configuration.GetBool("Interpreter", "statement_cache", true))
	interp.SetRunID(runID)
	runErr := interp.Execute(ctx)
	logger.Debug(logger.AreaServer, "run %s: %d steps, variables %v", runID, interp.Steps(), interp.Variables().Snapshot())

	if rec != nil {
		if err := s.db.Runs.Finish(rec.ID, con.Outputs(), runErr); err != nil {
			logger.Error(logger.AreaDatabase, "run %s: %v", rec.ID, err)
		}
	}
	return runID, runErr
}

// report sends the error report, if any, and the closing "Done.".
func (s *Server) report(client *Client, runID string, runErr error) {
	if runErr != nil {
		msg := shared.Message{Type: shared.MessageTypeError, Content: console.FormatError(runErr), RunID: runID}
		var se *espresso.ScriptError
		if errors.As(runErr, &se) {
			msg.Line = se.Line
			msg.Kind = se.Kind.String()
		}
		client.Send(msg)
	}
	client.Send(shared.Message{Type: shared.MessageTypeDone, Content: "Done.", RunID: runID})
}
