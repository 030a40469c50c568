// Package serve implements the mink HTTP service command.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsamf/mink/internal/api"
	"github.com/rsamf/mink/internal/buildinfo"
	"github.com/rsamf/mink/internal/casting"
	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/extraction"
	"github.com/rsamf/mink/internal/httpclient"
	"github.com/rsamf/mink/internal/jobqueue"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/mqtt"
	"github.com/rsamf/mink/internal/notify"
	"github.com/rsamf/mink/internal/observability"
	"github.com/rsamf/mink/internal/orchestrator"
	"github.com/rsamf/mink/internal/telemetry"
	"github.com/rsamf/mink/internal/worker"
)

// outboundTimeout bounds model server and LLM calls that carry no deadline
// of their own. Transcribing an hour of audio takes minutes.
const outboundTimeout = 15 * time.Minute

// Command creates the serve command. load is called once flags are parsed.
func Command(load func(...conf.Override) (*conf.Settings, error)) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the extraction pipeline",
		Long: `Start the HTTP API. Uploaded meeting videos are queued and processed by
the transcription and on-screen text workers; results are stored in the
configured database and, if enabled, announced over MQTT and to the
notification services under notify.urls.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := load(conf.WithListenAddress(host, port))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Address to bind (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")

	return cmd
}

// Run wires every component from settings and serves until ctx is done.
func Run(ctx context.Context, settings *conf.Settings) error {
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	defer func() { _ = central.Close() }()

	log := central.Module("main")
	build := buildinfo.Current()
	log.Info("starting mink",
		logger.String("version", build.Version()),
		logger.String("build_date", build.BuildDate()),
		logger.String("config", settings.ConfigFile))

	if err := telemetry.Init(&settings.Sentry, build.Version()); err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	}
	defer telemetry.Flush(&settings.Sentry, 2*time.Second)

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	var wg sync.WaitGroup
	quit := make(chan struct{})
	defer func() {
		close(quit)
		wg.Wait()
	}()

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(&settings.Telemetry, m, settings.Debug)
		if err != nil {
			return err
		}
		endpoint.Start(&wg, quit)
	}

	db, err := datastore.Open(&settings.DB, central.Module("datastore"))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	}()
	repo := datastore.NewRepository(db.DB())
	log.Info("database ready",
		logger.String("provider", db.Provider()),
		logger.String("location", db.Location()))

	clientCfg := httpclient.DefaultConfig()
	clientCfg.DefaultTimeout = outboundTimeout
	client := httpclient.New(&clientCfg)
	m.InstrumentClient(client)
	defer client.Close()

	opts := []orchestrator.Option{
		orchestrator.WithRecorder(m.Pipeline),
		orchestrator.WithSupervisor(worker.NewSupervisor(central.Module("worker"),
			worker.WithReportHook(workerReportHook(m.Pipeline)))),
	}

	if settings.Casting.Configured() {
		provider, err := casting.NewProvider(&settings.Casting, client)
		if err != nil {
			return err
		}
		caster := casting.NewCaster(&settings.Casting, provider, central.Module("casting"),
			casting.WithObserver(castingObserver(m.Pipeline)))
		opts = append(opts, orchestrator.WithCaster(caster))
		log.Info("note casting enabled",
			logger.String("provider", settings.Casting.Provider),
			logger.Int("note_types", len(settings.Casting.Types)))
	}

	var notifiers []notify.Notifier
	if settings.MQTT.Enabled {
		mqttClient := mqtt.NewClient(mqtt.ConfigFromSettings(&settings.MQTT), m.Notify)
		if err := mqttClient.Connect(ctx); err != nil {
			// the publisher retries on the first notification
			log.Warn("mqtt broker unavailable", logger.String("broker", settings.MQTT.Broker), logger.Error(err))
		}
		publisher := mqtt.NewPublisher(mqttClient, settings.MQTT.Topic, m.Notify)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	if settings.Notify.Enabled {
		shoutrrr, err := notify.NewShoutrrrNotifier(&settings.Notify, m.Notify, central.Module("notify"))
		if err != nil {
			return err
		}
		notifiers = append(notifiers, shoutrrr)
		log.Info("job notifications enabled", logger.Int("services", len(settings.Notify.URLs)))
	}
	if n := notify.Combine(notifiers...); n != nil {
		opts = append(opts, orchestrator.WithNotifier(n))
	}

	var uploads *orchestrator.UploadStore
	ready := settings.PipelineReady()
	if ready == nil {
		uploads, err = orchestrator.NewUploadStore(settings.Storage.UploadDir, settings.Storage.UploadIndexTTL)
		if err != nil {
			return err
		}
	} else {
		log.Warn("pipeline not configured, uploads will be recorded as failed", logger.Error(ready))
	}

	media := extraction.NewMedia(settings.OCR.FFmpegPath, settings.OCR.FFprobePath, extraction.NewExecutor())
	runner := orchestrator.NewRunner(settings, repo, uploads,
		extraction.NewTranscriber(settings, media, client, central.Module("transcription")),
		extraction.NewScreenReader(settings, media, client, central.Module("ocr")),
		central.Module("orchestrator"), opts...)

	queue := jobqueue.New(jobqueue.Config{
		Workers: settings.Pipeline.Queue.Workers,
		Size:    settings.Pipeline.Queue.Size,
	}, runner, central.Module("jobqueue"), jobqueue.WithObserver(queueObserver(m.Pipeline)))
	if err := queue.Start(ctx); err != nil {
		return err
	}

	if ready == nil {
		recovered, err := runner.Recover(ctx, queue)
		if err != nil {
			log.Error("failed to recover interrupted jobs", logger.Error(err))
		} else if recovered > 0 {
			log.Info("recovered interrupted jobs",
				logger.Int("count", recovered),
				logger.Bool("failed", settings.Pipeline.FailInterrupted))
		}
	}

	service := orchestrator.NewService(settings, repo, uploads, queue, central.Module("ingest"), opts...)
	server, err := api.New(settings,
		api.WithLogger(api.GetLogger()),
		api.WithService(service),
		api.WithQueueStats(queue),
		api.WithMetrics(m),
		api.WithBuildInfo(build))
	if err != nil {
		_, _ = queue.Stop(settings.Pipeline.ShutdownTimeout)
		return err
	}
	server.Start()

	<-ctx.Done()
	log.Info("shutting down")

	if err := server.Shutdown(); err != nil {
		log.Warn("http server did not shut down cleanly", logger.Error(err))
	}
	dropped, err := queue.Stop(settings.Pipeline.ShutdownTimeout)
	if err != nil {
		log.Warn("job queue did not drain", logger.Error(err))
	}
	if len(dropped) > 0 {
		// still queued in the database, handled by Recover on next start
		log.Info("jobs left queued", logger.Int("count", len(dropped)))
	}

	return nil
}
