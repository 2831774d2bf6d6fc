// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/debug"
	"github.com/qiaobaojoe/house-file-courier/pkg/library"
	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
	"github.com/qiaobaojoe/house-file-courier/pkg/notify"
	"github.com/qiaobaojoe/house-file-courier/pkg/progress"
	"github.com/qiaobaojoe/house-file-courier/pkg/server"
	"github.com/qiaobaojoe/house-file-courier/pkg/staging"
	"github.com/qiaobaojoe/house-file-courier/pkg/upload"
	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeOpts holds all configuration for the courier server
type ServeOpts struct {
	BindAddr  string // Interface to listen on, e.g. "0.0.0.0"
	HTTPPort  int
	DebugPort int // 0 disables the debug server

	UploadDir  string
	StagingDir string
	PublicDir  string

	ProgressBackend progress.Kind
	LevelDBPath     string
	Redis           progress.RedisConfig

	MaxChunkSize  int64
	MaxUploadSize int64
	MinFreeSpace  *utils.FreeSpace

	RateLimit float64
	RateBurst int

	Notify notify.Config

	ShutdownTimeout time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the courier HTTP server",
	Long: `Start the courier server: the web UI, the upload and file API, and the
websocket notification stream.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd.Flags())
	viper.BindPFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	// Network binding
	f.String("bind_addr", "0.0.0.0", "Interface to listen on")
	f.Int("http_port", 3000, "HTTP port for the UI and API")
	f.Int("debug_port", 3010, "Debug/metrics HTTP port (0 = disabled)")
	f.Float64("rate_limit", 0, "API requests per second allowed per client IP (0 = unlimited)")
	f.Int("rate_burst", 0, "API request burst per client IP (default: rate_limit)")

	// Storage
	f.String("upload_dir", "uploads", "Directory holding completed files")
	f.String("staging_dir", filepath.Join("uploads", "chunks"), "Directory holding chunks of in-progress uploads")
	f.String("public_dir", "public", "Directory with the web UI (empty = not served)")
	f.String("max_chunk_size", "100MiB", "Largest accepted chunk (e.g. '64MiB', 0 = unlimited)")
	f.String("max_upload_size", "0", "Largest accepted single-shot upload (0 = unlimited)")
	f.String("min_free_space", "", "Refuse writes below this free space ('1GiB' or '5%', empty = disabled)")

	// Progress
	f.String("progress_backend", string(progress.KindFile), "Progress store: file, leveldb, redis or memory")
	f.String("leveldb_path", "courier-progress.db", "LevelDB directory for the leveldb backend")

	// Redis, shared by the redis progress backend and the redis publisher
	f.String("redis.addr", "localhost:6379", "Redis address")
	f.String("redis.password", "", "Redis password")
	f.Int("redis.db", 0, "Redis database number")
	f.String("redis.prefix", "courier:progress", "Key prefix for the redis progress backend")
	f.Bool("redis.enabled", false, "Publish events to Redis pub/sub")
	f.String("redis.channel", "courier:events", "Redis pub/sub channel prefix")

	// Kafka
	f.Bool("kafka.enabled", false, "Publish events to Kafka")
	f.StringSlice("kafka.brokers", nil, "Kafka brokers (host:port)")
	f.String("kafka.topic", "courier-events", "Kafka topic")
	f.Int("kafka.required_acks", 1, "Kafka acks: 0 none, 1 leader, -1 all")
	f.String("kafka.compression", "snappy", "Kafka compression: none, gzip, snappy, lz4, zstd")
	f.String("kafka.sasl_mechanism", "", "Kafka SASL mechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512")
	f.String("kafka.sasl_username", "", "Kafka SASL username")
	f.String("kafka.sasl_password", "", "Kafka SASL password")

	f.Int("notify.queue_size", notify.DefaultQueueSize, "Events buffered for delivery before dropping")
	f.Duration("shutdown_timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
}

func runServe(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("courier", false)
	opts, err := loadServeOpts(cmd)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	debug.SetNotReady()

	store, err := progress.New(progress.Config{
		Kind:  opts.ProgressBackend,
		Dir:   progressDir(opts),
		Redis: opts.Redis,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("backend", string(opts.ProgressBackend)).Msg("failed to open progress store")
	}

	area, err := staging.NewLocal(staging.LocalConfig{Root: opts.StagingDir, MinFree: opts.MinFreeSpace})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create staging area")
	}

	hub := notify.NewHub()
	emitter, err := notify.NewFromConfig(opts.Notify, hub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create event publishers")
	}

	lib, err := library.New(library.Config{Dir: opts.UploadDir, MinFree: opts.MinFreeSpace, Sink: emitter})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload directory")
	}

	svc, err := upload.NewService(upload.Config{Staging: area, Progress: store, Library: lib})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create upload service")
	}

	srv, err := server.New(server.Config{
		Upload:        svc,
		Library:       lib,
		Listeners:     hub,
		PublicDir:     opts.PublicDir,
		MaxChunkSize:  opts.MaxChunkSize,
		MaxUploadSize: opts.MaxUploadSize,
		RateLimit:     opts.RateLimit,
		RateBurst:     opts.RateBurst,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create HTTP server")
	}

	registerReadyChecks(opts, store)

	logger.Info().
		Str("upload_dir", opts.UploadDir).
		Str("staging_dir", opts.StagingDir).
		Str("progress_backend", string(opts.ProgressBackend)).
		Str("max_chunk_size", humanize.IBytes(uint64(opts.MaxChunkSize))).
		Strs("publishers", emitter.Publishers()).
		Msg("Courier configuration")

	httpServer := startHTTPServer(srv, opts.BindAddr, opts.HTTPPort)
	var debugServer *http.Server
	if opts.DebugPort > 0 {
		debugServer = startHTTPServer(debug.GetMux(), opts.BindAddr, opts.DebugPort)
	}

	debug.SetReady()
	fmt.Fprintf(cmd.OutOrStdout(), "\nCourier is running. Open on another device:\n  http://%s\n\n",
		utils.JoinHostPort(utils.DetectedHostAddress(), opts.HTTPPort))

	waitForShutdown()

	debug.SetNotReady()
	logger.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	if err := emitter.Close(); err != nil {
		logger.Warn().Err(err).Msg("event publishers closed with errors")
	}
	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("progress store close")
	}
}

func loadServeOpts(cmd *cobra.Command) (ServeOpts, error) {
	f := NewFlagLoader(cmd)

	maxChunk, err := f.Bytes("max_chunk_size")
	if err != nil {
		return ServeOpts{}, err
	}
	maxUpload, err := f.Bytes("max_upload_size")
	if err != nil {
		return ServeOpts{}, err
	}
	minFree, err := utils.ParseMinFreeSpace(f.String("min_free_space"))
	if err != nil {
		return ServeOpts{}, fmt.Errorf("min_free_space: %w", err)
	}

	backend := progress.Kind(f.String("progress_backend"))
	switch backend {
	case progress.KindFile, progress.KindLevelDB, progress.KindRedis, progress.KindMemory:
	default:
		return ServeOpts{}, fmt.Errorf("progress_backend: unknown backend %q", backend)
	}

	redisCfg := progress.DefaultRedisConfig(f.String("redis.addr"))
	redisCfg.Password = f.String("redis.password")
	redisCfg.DB = f.Int("redis.db")
	if prefix := f.String("redis.prefix"); prefix != "" {
		redisCfg.KeyPrefix = prefix
	}

	opts := ServeOpts{
		BindAddr:        f.String("bind_addr"),
		HTTPPort:        f.Int("http_port"),
		DebugPort:       f.Int("debug_port"),
		UploadDir:       utils.ResolvePath(f.String("upload_dir")),
		StagingDir:      utils.ResolvePath(f.String("staging_dir")),
		PublicDir:       f.String("public_dir"),
		ProgressBackend: backend,
		LevelDBPath:     f.String("leveldb_path"),
		Redis:           redisCfg,
		MaxChunkSize:    maxChunk,
		MaxUploadSize:   maxUpload,
		MinFreeSpace:    minFree,
		RateLimit:       f.Float64("rate_limit"),
		RateBurst:       f.Int("rate_burst"),
		ShutdownTimeout: f.Duration("shutdown_timeout"),
		Notify: notify.Config{
			QueueSize: f.Int("notify.queue_size"),
			Redis: notify.RedisSettings{
				Enabled:  f.Bool("redis.enabled"),
				Addr:     redisCfg.Addr,
				Password: redisCfg.Password,
				DB:       redisCfg.DB,
				Channel:  f.String("redis.channel"),
			},
			Kafka: notify.KafkaSettings{
				Enabled:       f.Bool("kafka.enabled"),
				Brokers:       f.StringSlice("kafka.brokers"),
				Topic:         f.String("kafka.topic"),
				RequiredAcks:  f.Int("kafka.required_acks"),
				Compression:   f.String("kafka.compression"),
				SASLMechanism: f.String("kafka.sasl_mechanism"),
				SASLUsername:  f.String("kafka.sasl_username"),
				SASLPassword:  f.String("kafka.sasl_password"),
			},
		},
	}
	if opts.PublicDir != "" {
		opts.PublicDir = utils.ResolvePath(opts.PublicDir)
	}
	if opts.UploadDir == opts.StagingDir {
		return ServeOpts{}, fmt.Errorf("staging_dir must differ from upload_dir")
	}
	if backend == progress.KindLevelDB && opts.LevelDBPath == "" {
		return ServeOpts{}, fmt.Errorf("leveldb_path is required for the leveldb backend")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return opts, nil
}

// progressDir is where the file and leveldb backends keep their data.
func progressDir(opts ServeOpts) string {
	if opts.ProgressBackend == progress.KindLevelDB {
		return utils.ResolvePath(opts.LevelDBPath)
	}
	return opts.StagingDir
}

const readyProbeIdentifier = "courier-ready-probe"

func registerReadyChecks(opts ServeOpts, store progress.Store) {
	debug.AddReadyCheck("upload_dir", func() error {
		return utils.CheckFreeSpace(opts.UploadDir, opts.MinFreeSpace)
	})
	debug.AddReadyCheck("staging_dir", func() error {
		return utils.CheckFreeSpace(opts.StagingDir, opts.MinFreeSpace)
	})
	debug.AddReadyCheck("progress", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := store.Get(ctx, readyProbeIdentifier)
		return err
	})
}

func startHTTPServer(handler http.Handler, ip string, port int) *http.Server {
	addr := utils.JoinHostPort(ip, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("http_addr", addr).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	<-stopChan
}
