package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"snapcam/internal/capture"
	"snapcam/internal/registry"
	"snapcam/internal/service"
	"snapcam/pkg/models"
)

// Variables to hold flag values
var (
	cameraName   string
	outputFile   string
	outputDir    string
	probeTimeout time.Duration
)

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Parent Command
var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Manage cameras",
	Long:  `List configured cameras, take snapshots or probe RTSP streams.`,
}

// List Command
var camerasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured cameras",
	Run: func(cmd *cobra.Command, args []string) {
		svc, _, _ := setupService()
		reg := svc.Registry()

		cameras := make([]models.CameraProfile, 0, reg.Len())
		for _, name := range reg.Names() {
			p, _ := reg.Get(name)
			cameras = append(cameras, p)
		}

		if jsonOutput {
			printJSON(cameras)
			return
		}

		if len(cameras) == 0 {
			fmt.Println("No cameras configured. Set CAMERA_<NAME>_IP to add one.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tHOST\tPORT\tPATH\tAUTH")
		fmt.Fprintln(w, "----\t----\t----\t----\t----\t----")

		for _, cam := range cameras {
			typ := string(cam.Type)
			if cam.Type == models.CameraTypeUnknown {
				typ = fmt.Sprintf("%s (%s)", cam.RawType, models.CameraTypeRTSP)
			}
			path := cam.Path
			if path == "" {
				path = "-"
			}
			auth := "none"
			if cam.HasCredentials() {
				auth = string(cam.Auth)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", cam.Name, typ, cam.Host, cam.Port, path, auth)
		}
		w.Flush()
	},
}

// Snapshot Command
var camerasSnapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Short:   "Take a snapshot from one camera",
	Example: `  snapcam cameras snapshot --name kitchen --output kitchen.jpg`,
	Run: func(cmd *cobra.Command, args []string) {
		svc, _, _ := setupService()
		ctx, cancel := signalContext()
		defer cancel()

		res, err := svc.Capture(ctx, service.CaptureParams{CameraName: cameraName})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if !res.Success {
			if jsonOutput {
				printJSON(res)
			}
			fmt.Printf("Error capturing from camera %s: %s\n", res.CameraName, res.Error)
			os.Exit(1)
		}

		out := outputFile
		if out == "" {
			out = snapshotFileName(res)
		}
		if err := os.WriteFile(out, res.Image, 0644); err != nil {
			fmt.Printf("Error writing file: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			res.Image = nil
			printJSON(struct {
				models.CaptureResult
				File string `json:"file"`
			}{res, out})
			return
		}
		fmt.Printf("Snapshot from %s saved to %s (%d bytes, %s)\n", res.CameraName, out, len(res.Image), res.Duration.Round(time.Millisecond))
	},
}

// Snapshot-all Command
var camerasSnapshotAllCmd = &cobra.Command{
	Use:   "snapshot-all",
	Short: "Take a snapshot from every configured camera",
	Long: `Captures all cameras concurrently, at most three at a time. One camera
failing never stops the others.`,
	Run: func(cmd *cobra.Command, args []string) {
		svc, _, _ := setupService()
		ctx, cancel := signalContext()
		defer cancel()

		report, err := svc.CaptureAll(ctx)
		if report == nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			fmt.Printf("Error creating output directory: %v\n", err)
			os.Exit(1)
		}
		files := make(map[string]string, len(report.Successes))
		for _, res := range report.Successes {
			path := filepath.Join(outputDir, snapshotFileName(res))
			if werr := os.WriteFile(path, res.Image, 0644); werr != nil {
				fmt.Printf("Error writing snapshot for %s: %v\n", res.CameraName, werr)
				continue
			}
			files[res.CameraName] = path
		}

		if jsonOutput {
			for i := range report.Successes {
				report.Successes[i].Image = nil
			}
			printJSON(report)
		} else {
			fmt.Printf("Captured %d of %d cameras in %s\n", len(report.Successes), report.TotalCameras, report.Duration.Round(time.Millisecond))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "CAMERA\tSTATUS\tDETAIL")
			fmt.Fprintln(w, "------\t------\t------")
			for _, res := range report.Successes {
				fmt.Fprintf(w, "%s\t%s\t%s\n", res.CameraName, "OK", files[res.CameraName])
			}
			for _, f := range report.Failures {
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.CameraName, "FAILED", f.Error)
			}
			w.Flush()
		}

		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// Probe Command
var camerasProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Describe a camera's RTSP stream without capturing",
	Run: func(cmd *cobra.Command, args []string) {
		svc, capturer, _ := setupService()
		ctx, cancel := signalContext()
		defer cancel()

		p, err := svc.Registry().Resolve(cameraName)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		info, err := capturer.ProbeRTSP(ctx, p, probeTimeout)
		if err != nil {
			fmt.Printf("Error probing camera %s: %v\n", p.Name, err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(info)
			return
		}

		fmt.Printf("Camera: %s\nURL:    %s\n\n", info.Camera, info.URL)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "MEDIA\tCODECS\tCONTROL")
		fmt.Fprintln(w, "-----\t------\t-------")
		for _, m := range info.Medias {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Type, strings.Join(m.Codecs, ","), m.Control)
		}
		w.Flush()
	},
}

func snapshotFileName(res models.CaptureResult) string {
	ext := ".jpg"
	if capture.ImageFormat(res.Image) == "png" {
		ext = ".png"
	}
	name := res.CameraName
	if name == "" {
		name = registry.DefaultName
	}
	return fmt.Sprintf("%s_%s%s", name, res.CapturedAt.Format("20060102_150405"), ext)
}

func init() {
	rootCmd.AddCommand(camerasCmd)
	camerasCmd.AddCommand(camerasListCmd)
	camerasCmd.AddCommand(camerasSnapshotCmd)
	camerasCmd.AddCommand(camerasSnapshotAllCmd)
	camerasCmd.AddCommand(camerasProbeCmd)

	camerasSnapshotCmd.Flags().StringVarP(&cameraName, "name", "n", "", "Camera name (default camera when empty)")
	camerasSnapshotCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default <camera>_<timestamp>.jpg)")

	camerasSnapshotAllCmd.Flags().StringVarP(&outputDir, "output-dir", "d", ".", "Directory snapshots are written to")

	camerasProbeCmd.Flags().StringVarP(&cameraName, "name", "n", "", "Camera name (default camera when empty)")
	camerasProbeCmd.Flags().DurationVar(&probeTimeout, "timeout", capture.DefaultRTSPTimeout, "RTSP read/write timeout")
}
