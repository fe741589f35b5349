package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/cursor"
	"github.com/hanpama/docdb/internal/eventbus"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/grpctp"
	"github.com/hanpama/docdb/internal/httptp"
	"github.com/hanpama/docdb/internal/logging"
	"github.com/hanpama/docdb/internal/memserver"
	"github.com/hanpama/docdb/internal/metrics"
	"github.com/hanpama/docdb/internal/otel"
	"github.com/hanpama/docdb/internal/retry"
	"github.com/hanpama/docdb/internal/server"
	"github.com/hanpama/docdb/internal/wirepb"
)

const rootUsage = `docdb - document database client tools

USAGE:
  docdb <command> [flags]

COMMANDS:
  serve            Run the in-process database over HTTP and gRPC
  query            Run a query and stream its result as JSON lines
  print-proto      Write the gateway .proto file
  help             Show help for any command
`

const commonUsage = `  -log.level <level>                  error, warn, info, debug, trace or a number (default: info)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: docdb)
`

const serveUsage = `serve FLAGS:
  -fixtures <file>                    JSON array of {query, rows, limit, warnings}
  -http.addr <addr>                   REST listen address, empty to disable (default: :8529)
  -grpc.addr <addr>                   gRPC gateway listen address, empty to disable (default: :8530)
  -server.timeout <duration>          Per-request timeout (default: 10s)
  -cursor.ttl <duration>              Idle TTL of cursors created without one (default: 30s)
  -cursor.batch-size N                Batch size of queries created without one (default: 1000)
  -metrics.addr <addr>                Serve Prometheus metrics on this address
` + commonUsage

const queryUsage = `query FLAGS:
  -query <text>                       Query to run (required)
  -bind <name=value>                  Bind variable; value is JSON or a plain string. Repeatable
  -db <name>                          Database (default: _system)
  -batch-size N                       Items per batch (default: server default)
  -count                              Ask for the total result count
  -full-count                         Ask for the count before the last LIMIT
  -ttl <duration>                     Idle TTL of the server cursor
  -cache                              Allow the query result cache
  -transport <http|grpc>              Transport to use (default: http)
  -http.url <url>                     Server URL for -transport http (default: http://localhost:8529)
  -transport.backend <host:port>      Gateway endpoint for -transport grpc. Repeatable
  -transport.max-conns-per-endpoint N Max conns per endpoint (default: 2)
  -transport.rpc-timeout <duration>   RPC timeout (default: 3s)
  -retry.max N                        Attempts per request for transport failures (default: 1)
` + commonUsage

const printProtoUsage = `print-proto FLAGS:
  -out <dir>                          Output directory (required)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("docdb", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, cmdArgs, stderr)
	case "query":
		return cmdQuery(ctx, cmdArgs, stdout, stderr)
	case "print-proto":
		return cmdPrintProto(cmdArgs, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "query":
		fmt.Fprint(stdout, queryUsage)
	case "print-proto":
		fmt.Fprint(stdout, printProtoUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// bindFlag collects -bind name=value pairs. Values that parse as JSON keep
// their type; anything else is a string.
type bindFlag struct {
	m map[string]any
}

func (b *bindFlag) String() string { return "" }

func (b *bindFlag) Set(v string) error {
	name, raw, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("invalid bind variable %q", v)
	}
	var val any
	if err := codec.JSON.Decode([]byte(raw), &val); err != nil {
		val = raw
	}
	if b.m == nil {
		b.m = map[string]any{}
	}
	b.m[name] = val
	return nil
}

// commonFlags are shared by the long-running commands.
type commonFlags struct {
	logLevel     string
	otelEndpoint string
	otelService  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	c.logLevel = "info"
	c.otelService = "docdb"
	fs.StringVar(&c.logLevel, "log.level", c.logLevel, "Log level")
	fs.StringVar(&c.otelEndpoint, "otel.endpoint", c.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&c.otelService, "otel.service", c.otelService, "OpenTelemetry service name")
}

// setup installs the logger in ctx, a fresh global event bus and tracing.
func (c *commonFlags) setup(ctx context.Context) (context.Context, *eventbus.Bus, func(), error) {
	logger, err := logging.New(c.logLevel)
	if err != nil {
		return ctx, nil, nil, err
	}
	ctx = logging.IntoContext(ctx, logger)

	bus := eventbus.New()
	eventbus.Use(bus)
	shutdown, err := otel.Setup(ctx, bus, c.otelEndpoint, c.otelService)
	if err != nil {
		return ctx, nil, nil, fmt.Errorf("otel setup: %w", err)
	}
	return ctx, bus, func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}, nil
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	fixturesFile := ""
	httpAddr := ":8529"
	grpcAddr := ":8530"
	timeout := 10 * time.Second
	cursorTTL := 30 * time.Second
	batchSize := 1000
	metricsAddr := ""
	var common commonFlags

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&fixturesFile, "fixtures", fixturesFile, "Fixture file")
	fs.StringVar(&httpAddr, "http.addr", httpAddr, "REST listen address")
	fs.StringVar(&grpcAddr, "grpc.addr", grpcAddr, "gRPC listen address")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.DurationVar(&cursorTTL, "cursor.ttl", cursorTTL, "Default cursor TTL")
	fs.IntVar(&batchSize, "cursor.batch-size", batchSize, "Default batch size")
	fs.StringVar(&metricsAddr, "metrics.addr", metricsAddr, "Prometheus metrics address")
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	if httpAddr == "" && grpcAddr == "" {
		fmt.Fprint(stderr, serveUsage)
		return fmt.Errorf("at least one of -http.addr and -grpc.addr is required")
	}

	var fixtures []memserver.Fixture
	if fixturesFile != "" {
		var err error
		if fixtures, err = memserver.LoadFixtures(fixturesFile); err != nil {
			return err
		}
	}

	ctx, bus, cleanup, err := common.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := logr.FromContextOrDiscard(ctx)

	ms := memserver.New(fixtures, memserver.WithDefaultTTL(cursorTTL), memserver.WithDefaultBatchSize(batchSize))
	defer ms.Close()

	errCh := make(chan error, 3)
	var shutdowns []func(context.Context) error

	if metricsAddr != "" {
		m := metrics.New()
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		defer m.Subscribe(bus)()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		msrv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() { errCh <- serveHTTP(msrv) }()
		shutdowns = append(shutdowns, msrv.Shutdown)
		logger.Info("metrics listening", "addr", metricsAddr)
	}

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs := grpc.NewServer()
		ms.RegisterGateway(gs)
		go func() { errCh <- gs.Serve(lis) }()
		shutdowns = append(shutdowns, func(context.Context) error {
			gs.GracefulStop()
			return nil
		})
		logger.Info("gRPC gateway listening", "addr", lis.Addr().String(), "service", wirepb.ServiceName)
	}

	if httpAddr != "" {
		h := server.New(ms, server.WithTimeout(timeout), server.WithLogger(logger))
		hs := &http.Server{Addr: httpAddr, Handler: h}
		go func() { errCh <- serveHTTP(hs) }()
		shutdowns = append(shutdowns, hs.Shutdown)
		logger.Info("REST server listening", "addr", httpAddr)
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, f := range shutdowns {
		_ = f(sctx)
	}
	return err
}

func serveHTTP(s *http.Server) error {
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cmdQuery(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	query := ""
	db := "_system"
	var binds bindFlag
	var opts cursor.Options
	transport := "http"
	httpURL := "http://localhost:8529"
	var backends stringListFlag
	maxConns := 2
	rpcTimeout := 3 * time.Second
	retryMax := uint(1)
	var common commonFlags

	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&query, "query", query, "Query text")
	fs.Var(&binds, "bind", "Bind variable name=value")
	fs.StringVar(&db, "db", db, "Database")
	fs.IntVar(&opts.BatchSize, "batch-size", 0, "Items per batch")
	fs.BoolVar(&opts.Count, "count", false, "Ask for the total count")
	fs.BoolVar(&opts.FullCount, "full-count", false, "Ask for the full count")
	fs.DurationVar(&opts.TTL, "ttl", 0, "Cursor TTL")
	fs.BoolVar(&opts.Cache, "cache", false, "Allow the query cache")
	fs.StringVar(&transport, "transport", transport, "http or grpc")
	fs.StringVar(&httpURL, "http.url", httpURL, "Server URL")
	fs.Var(&backends, "transport.backend", "Gateway endpoint")
	fs.IntVar(&maxConns, "transport.max-conns-per-endpoint", maxConns, "Max conns per endpoint")
	fs.DurationVar(&rpcTimeout, "transport.rpc-timeout", rpcTimeout, "RPC timeout")
	fs.UintVar(&retryMax, "retry.max", retryMax, "Attempts per request")
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, queryUsage)
		return err
	}
	if query == "" {
		fmt.Fprint(stderr, queryUsage)
		return fmt.Errorf("-query is required")
	}

	ctx, _, cleanup, err := common.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var tp executor.Transport
	switch transport {
	case "http":
		t, err := httptp.New(httpURL)
		if err != nil {
			return err
		}
		tp = t
	case "grpc":
		if len(backends) == 0 {
			fmt.Fprint(stderr, queryUsage)
			return fmt.Errorf("-transport.backend is required for -transport grpc")
		}
		provider := grpctp.NewStaticEndpoints(map[string][]string{wirepb.ServiceName: backends})
		trOpts := []grpctp.Option{grpctp.WithProvider(provider), grpctp.WithMaxConnsPerEndpoint(maxConns)}
		if rpcTimeout > 0 {
			trOpts = append(trOpts, grpctp.WithRPCTimeout(rpcTimeout))
		}
		t := grpctp.New(trOpts...)
		defer t.Close()
		tp = t
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
	if retryMax > 1 {
		tp = retry.New(tp, retry.WithMaxTries(retryMax))
	}
	exec := executor.New(tp)

	cur, err := cursor.Run[codec.Raw](ctx, exec, cursor.Query{
		Database: db,
		Query:    query,
		BindVars: binds.m,
		Options:  opts,
	}).Await(ctx)
	if err != nil {
		return err
	}
	defer cur.Close()

	err = cur.ForEachRemaining(ctx, func(item codec.Raw) error {
		_, err := fmt.Fprintf(stdout, "%s\n", item)
		return err
	})
	if err != nil {
		return err
	}
	if n, ok := cur.Count(); ok {
		fmt.Fprintf(stderr, "count: %d\n", n)
	}
	if fc := cur.Stats().FullCount; fc != nil {
		fmt.Fprintf(stderr, "fullCount: %d\n", *fc)
	}
	if cur.Cached() {
		fmt.Fprintln(stderr, "cached: true")
	}
	for _, w := range cur.Warnings() {
		fmt.Fprintf(stderr, "warning %d: %s\n", w.Code, w.Message)
	}
	return nil
}

func cmdPrintProto(args []string, stderr io.Writer) error {
	outDir := ""
	fs := flag.NewFlagSet("print-proto", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outDir, "out", outDir, "Output directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printProtoUsage)
		return err
	}
	if outDir == "" {
		fmt.Fprint(stderr, printProtoUsage)
		return fmt.Errorf("-out is required")
	}
	if err := wirepb.Render(outDir); err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	return nil
}
