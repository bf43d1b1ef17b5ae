package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"snapcam/internal/config"
	"snapcam/internal/metrics"
	"snapcam/internal/publish"
	"snapcam/internal/server"
	svcpkg "snapcam/internal/service"
	"snapcam/pkg/models"
)

var serviceAction string

// --- SERVICE WRAPPER ---

// program implements the kardianos/service interface
type program struct {
	svc       *svcpkg.Service
	settings  config.Settings
	publisher *publish.Publisher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
	return nil
}

func (p *program) run(ctx context.Context) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(p.svc.Registry())
	promReg.MustRegister(collector)
	p.svc.AddObserver(collector)

	if p.settings.MQTT.Broker != "" {
		p.publisher = publish.New(publish.Config{
			Broker:       p.settings.MQTT.Broker,
			ClientID:     p.settings.MQTT.ClientID,
			Username:     p.settings.MQTT.Username,
			Password:     p.settings.MQTT.Password,
			TopicPrefix:  p.settings.MQTT.TopicPrefix,
			QoS:          p.settings.MQTT.QoS,
			IncludeImage: p.settings.MQTT.IncludeImage,
		}, log.Logger)
		if err := p.publisher.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("mqtt unavailable, events are dropped until it connects")
		}
		// Registered even when the first connect failed; paho keeps retrying.
		p.svc.AddObserver(p.publisher)
	}

	if p.settings.Serve.Interval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.schedule(ctx, p.settings.Serve.Interval)
		}()
	}

	srv := server.New(p.settings.Serve.Addr, p.svc, promReg, log.Logger)
	log.Info().
		Str("addr", p.settings.Serve.Addr).
		Int("cameras", p.svc.Registry().Len()).
		Msg("snapcam listening")

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("http server error")
	}
}

// schedule captures every camera each interval until ctx is done.
func (p *program) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := p.svc.CaptureAll(ctx)
			switch {
			case errors.Is(err, models.ErrNoCameras):
				log.Warn().Msg("scheduled capture skipped, no cameras configured")
			case err != nil:
				log.Error().Err(err).Msg("scheduled capture failed")
			default:
				log.Info().
					Int("succeeded", len(report.Successes)).
					Int("failed", len(report.Failures)).
					Msg("scheduled capture complete")
			}
		}
	}
}

func (p *program) Stop(s service.Service) error {
	// Stop should not block for long. Signal the app to stop.
	log.Info().Msg("Stopping service...")
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("timed out waiting for captures to finish")
	}

	if p.publisher != nil {
		p.publisher.Disconnect()
	}
	return nil
}

// --- COMMAND ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot HTTP API",
	Long: `Starts a long-running HTTP server exposing snapshots, batch captures and
Prometheus metrics, optionally capturing every camera on an interval and
publishing results over MQTT. Can be installed as a system service.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Define Service Configuration
		svcConfig := &service.Config{
			Name:        "snapcam",
			DisplayName: "snapcam",
			Description: "Captures still images from IP cameras",
			// Arguments passed to the binary when run as a service
			Arguments: []string{"serve"},
		}
		if cfgFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgFile)
		}
		svcConfig.Arguments = append(svcConfig.Arguments, "--log-level", logLevel)
		for _, name := range []string{"addr", "interval"} {
			if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
				svcConfig.Arguments = append(svcConfig.Arguments, "--"+name, f.Value.String())
			}
		}
		if wd, err := os.Getwd(); err == nil {
			// Relative env_files entries resolve against the install directory.
			svcConfig.WorkingDirectory = wd
		}

		// 2. Handle Service Control Actions (Install, Start, Stop, Uninstall)
		if serviceAction != "" {
			s, err := service.New(&program{}, svcConfig)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			if err := service.Control(s, serviceAction); err != nil {
				fmt.Printf("Failed to %s service: %v\n", serviceAction, err)
				os.Exit(1)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		// 3. Run the Service (Blocking)
		// This happens when the Service Manager starts the binary, OR when run interactively without flags
		svc, _, settings := setupService()
		prg := &program{svc: svc, settings: settings}

		s, err := service.New(prg, svcConfig)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.Run(); err != nil {
			log.Error().Err(err).Msg("service exited")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop, restart")
	serveCmd.Flags().String("addr", ":9100", "Address to listen on")
	serveCmd.Flags().Duration("interval", 0, "Capture every camera on this interval (0 disables)")
	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("serve.interval", serveCmd.Flags().Lookup("interval"))
}
