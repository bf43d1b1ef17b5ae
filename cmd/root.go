package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"snapcam/internal/capture"
	"snapcam/internal/config"
	"snapcam/internal/registry"
	"snapcam/internal/service"
)

var cfgFile string
var jsonOutput bool
var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "snapcam",
	Short: "Capture still images from IP cameras",
	Long: `Capture snapshots from RTSP, MJPEG, HTTP and ONVIF cameras configured
through CAMERA_<NAME>_<FIELD> keys, one camera at a time or all at once.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		setupLogging(logLevel)
		config.InitConfig(cfgFile)
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.snapcam.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// setupService loads settings and cameras and wires the capture stack.
func setupService() (*service.Service, *capture.Capturer, config.Settings) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	raw, err := config.CameraNamespace(viper.GetViper(), os.Environ())
	if err != nil {
		fmt.Printf("Error loading cameras: %v\n", err)
		os.Exit(1)
	}
	reg := registry.FromConfig(raw)
	log.Debug().Strs("cameras", reg.Names()).Msg("cameras discovered")

	capturer := capture.New(capture.Options{
		FFmpegPath:    settings.FFmpegPath,
		RTSPTransport: settings.RTSPTransport,
		TempDir:       settings.TempDir,
		HTTPTimeout:   settings.HTTPTimeout,
		MJPEGTimeout:  settings.MJPEGTimeout,
		ONVIFLookup:   settings.ONVIF.Lookup,
	}, log.Logger)

	svc := service.New(reg, capturer, service.Options{
		RTSPTimeout: settings.RTSPTimeout,
		Concurrency: settings.Concurrency,
	}, log.Logger)

	return svc, capturer, settings
}
