// voip_client консольный аудио клиент: RTP/RTCP по UDP между двумя
// адресами без сигнализации.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/arzzra/voip_client/pkg/audiodev"
	"github.com/arzzra/voip_client/pkg/conductor"
	"github.com/arzzra/voip_client/pkg/engine"
	"github.com/arzzra/voip_client/pkg/rtp"
	"github.com/arzzra/voip_client/pkg/voip"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Путь к YAML конфигурации")
		local       = flag.String("local", "", "Локальный адрес ip:port (RTCP на port+1)")
		remote      = flag.String("remote", "", "Удаленный адрес ip:port")
		encoder     = flag.String("encoder", "", "Кодек отправки")
		decoders    = flag.String("decoders", "", "Кодеки приема через запятую")
		metricsAddr = flag.String("metrics", "", "Адрес HTTP сервера метрик, например :9090")
		audioDevice = flag.Bool("audio", false, "Использовать микрофон и динамик вместо тона")
		logLevel    = flag.String("log-level", "", "Уровень логирования")
		dscp        = flag.Int("dscp", -1, "DSCP маркировка RTP/RTCP")
		autoStart   = flag.Bool("start", false, "Запустить сессию, отправку и воспроизведение сразу")
	)
	flag.Parse()

	config, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Флаги командной строки имеют приоритет над файлом
	var flagErrs []error
	flag.Visit(func(f *flag.Flag) {
		var err error
		switch f.Name {
		case "local":
			config.Local, err = parseAddress(*local)
		case "remote":
			config.Remote, err = parseAddress(*remote)
		case "encoder":
			config.Encoder = *encoder
		case "decoders":
			config.Decoders = splitList(*decoders)
		case "metrics":
			config.MetricsAddr = *metricsAddr
		case "audio":
			config.AudioDevice = *audioDevice
		case "log-level":
			config.LogLevel = *logLevel
		case "dscp":
			config.DSCP = *dscp
		case "start":
			config.AutoStart = *autoStart
		}
		if err != nil {
			flagErrs = append(flagErrs, fmt.Errorf("-%s: %w", f.Name, err))
		}
	})
	err = errors.Join(flagErrs...)
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(config); err != nil {
		logrus.WithError(err).Error("клиент завершился с ошибкой")
		os.Exit(1)
	}
}

func run(config AppConfig) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, _ := logrus.ParseLevel(config.LogLevel)
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, sink, closeAudio, err := openAudio(config, logger)
	if err != nil {
		return err
	}
	defer closeAudio()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	socket := rtp.DefaultSocketConfig()
	socket.DSCP = config.DSCP

	client, err := voip.New(voip.Config{
		EngineFactory: func() (engine.Engine, error) {
			return engine.NewSoftEngine(engine.SoftConfig{
				Source: source,
				Sink:   sink,
				Logger: logger,
			}), nil
		},
		Logger:  logger,
		Metrics: voip.NewMetrics(registry),
		Socket:  socket,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	console := NewConsole(os.Stdout, client.Catalog(), config, interactive)
	cond := conductor.New(client, console, logger)
	console.Bind(cond)
	cond.Start()
	defer cond.Stop()

	if config.AutoStart {
		for _, cmd := range []string{"session on", "playout on", "send on"} {
			if _, err := console.Execute(cmd); err != nil {
				return err
			}
		}
	}
	if interactive {
		console.Execute("help")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return console.Run(ctx, os.Stdin)
	})

	if config.MetricsAddr != "" {
		server := &http.Server{
			Addr:              config.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.WithField("addr", config.MetricsAddr).Info("сервер метрик запущен")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("сервер метрик: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// openAudio выбирает источник и приемник звука
func openAudio(config AppConfig, logger logrus.FieldLogger) (engine.AudioSource, engine.AudioSink, func(), error) {
	if !config.AudioDevice {
		return engine.NewToneSource(), &engine.NullSink{}, func() {}, nil
	}
	device, err := audiodev.Open(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return device, device, device.Close, nil
}
