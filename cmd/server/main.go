package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/amanullahtanweer/windowed-transcriber/internal/config"
	"github.com/amanullahtanweer/windowed-transcriber/internal/events"
	"github.com/amanullahtanweer/windowed-transcriber/internal/logging"
	"github.com/amanullahtanweer/windowed-transcriber/internal/observability"
	"github.com/amanullahtanweer/windowed-transcriber/internal/server"
	"github.com/amanullahtanweer/windowed-transcriber/internal/store"
	"github.com/amanullahtanweer/windowed-transcriber/internal/stream"
	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
)

const healthService = "windowed.transcriber.Stream"

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	geom, err := cfg.Geometry()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid window geometry")
	}
	log.Info().
		Int("sampleRate", geom.SampleRate).
		Int("chunkSize", geom.ChunkSize).
		Int("stepSize", geom.StepSize).
		Float64("safeStart", geom.SafeStart).
		Float64("safeEnd", geom.SafeEnd).
		Str("engine", cfg.Engine.Provider).
		Msg("Window geometry")

	engine, err := transcriber.New(cfg.EngineConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}
	pool := transcriber.NewPool(engine, cfg.Engine.Workers, cfg.Engine.Timeout)
	defer pool.Close()
	log.Info().Str("engine", pool.Name()).Int("workers", pool.Workers()).Msg("Engine ready")

	obs := observability.NewServer(cfg.Observability.Addr, nil)

	recorders := []stream.Recorder{}
	publisher := events.New(&cfg.Kafka)
	defer publisher.Close()
	recorders = append(recorders, publisher)

	if cfg.Redis.Enabled {
		redisStore := store.NewRedisStore(cfg.Redis)
		defer redisStore.Close()
		recorders = append(recorders, redisStore)
		obs.AddCheck("redis", redisStore.Ping)
	}

	if cfg.Transcription.SaveTranscripts || cfg.Transcription.SaveAudio {
		archive, err := store.NewArchive(store.ArchiveConfig{
			OutputDir:       cfg.Transcription.OutputDir,
			SaveTranscripts: cfg.Transcription.SaveTranscripts,
			SaveAudio:       cfg.Transcription.SaveAudio,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive")
		}
		recorders = append(recorders, archive)
	}
	if cfg.Transcription.SaveJournal {
		journal, err := store.NewJournal(cfg.Transcription.OutputDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create journal")
		}
		defer journal.Close()
		recorders = append(recorders, journal)
	}

	pipeline := server.Pipeline{
		Engine:       pool,
		Geometry:     geom,
		ContextChars: cfg.Audio.ContextChars,
		Recorders:    recorders,
	}

	ws := server.NewWebsocketServer(server.WebsocketConfig{
		Addr:          cfg.ServerAddr(),
		Path:          cfg.Server.Path,
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		WriteTimeout:  cfg.Server.WriteTimeout,
	}, pipeline)

	var as *server.AudioSocketServer
	if cfg.AudioSocket.Enabled {
		if geom.SampleRate != server.AudioSocketRate {
			log.Warn().
				Int("sampleRate", geom.SampleRate).
				Msg("AudioSocket enabled but sample rate is not 8000; calls will be rejected")
		}
		as = server.NewAudioSocketServer(cfg.AudioSocketAddr(), pipeline)
	}

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.Observability.HealthGRPCAddr != "" {
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(ws.ListenAndServe)
	if as != nil {
		g.Go(as.Start)
	}
	if grpcServer != nil {
		lis, err := net.Listen("tcp", cfg.Observability.HealthGRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to listen for gRPC health")
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.Observability.HealthGRPCAddr).Msg("gRPC health server started")
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if healthServer != nil {
			healthServer.Shutdown()
		}
		if err := ws.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Websocket shutdown")
		}
		if as != nil {
			as.Stop()
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return obs.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}
