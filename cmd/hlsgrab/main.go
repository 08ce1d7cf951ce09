package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mdrill/hlsgrab"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hlsgrab:", err)
		os.Exit(1)
	}
}

// newRootCommand mirrors the teacher's cmd/grab/main.go flag layout,
// trimmed to the knobs hlsgrab.Config actually carries.
func newRootCommand() *cobra.Command {
	cfg := hlsgrab.DefaultConfig()

	var (
		outputPath  string
		taskID      string
		qualityTag  string
		headerFlags []string
		bandwidthMB float64
	)

	cmd := &cobra.Command{
		Use:   "hlsgrab PLAYLIST_URL",
		Short: "Download an HLS (M3U8) stream into a single MP4 file",
		Long:  "hlsgrab - resumable, crash-safe, parallel HLS segment downloader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				return fmt.Errorf("--output is required")
			}
			if len(headerFlags) > 0 {
				hdrs := make(http.Header)
				for _, h := range headerFlags {
					parts := strings.SplitN(h, ":", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid header %q, expected \"Name: Value\"", h)
					}
					hdrs.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
				}
				cfg.Headers = hdrs
			}
			if bandwidthMB > 0 {
				cfg.BandwidthLimitBps = int64(bandwidthMB * 1024 * 1024)
			}
			if taskID == "" {
				taskID = fmt.Sprintf("hlsgrab-%d", time.Now().UnixNano())
			}

			controller, err := hlsgrab.NewController(*cfg, nil, nil)
			if err != nil {
				return err
			}
			defer controller.Close()

			task := hlsgrab.NewDownloadTask(taskID, args[0], outputPath, outputPath, qualityTag)
			return controller.Run(cmd.Context(), task, newCLIProgressCallback(cfg.Silent))
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output MP4 path (required)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Stable task id for resume across runs (default: derived from the current time)")
	cmd.Flags().StringVarP(&qualityTag, "quality", "q", "", "Informational quality tag attached to the task")
	cmd.Flags().IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "HTTP client pool size")
	cmd.Flags().IntVar(&cfg.ConcurrencyMin, "concurrency-min", cfg.ConcurrencyMin, "Minimum parallel segment fetches")
	cmd.Flags().IntVar(&cfg.ConcurrencyMax, "concurrency-max", cfg.ConcurrencyMax, "Maximum parallel segment fetches")
	cmd.Flags().IntVar(&cfg.ConcurrencyInitial, "concurrency-initial", cfg.ConcurrencyInitial, "Initial parallel segment fetches")
	cmd.Flags().Float64Var(&bandwidthMB, "max-bandwidth-mb", 0, "Aggregate bandwidth ceiling in MiB/s (0 = unlimited)")
	cmd.Flags().DurationVar(&cfg.SegmentTimeout, "segment-timeout", cfg.SegmentTimeout, "Per-segment HTTP timeout")
	cmd.Flags().DurationVar(&cfg.PlaylistTimeout, "playlist-timeout", cfg.PlaylistTimeout, "Playlist fetch timeout")
	cmd.Flags().DurationVar(&cfg.KeyTimeout, "key-timeout", cfg.KeyTimeout, "Decryption key fetch timeout")
	cmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Custom HTTP header, \"Name: Value\" (repeatable)")
	cmd.Flags().StringVarP(&cfg.UserAgent, "user-agent", "u", "", "Custom User-Agent")
	cmd.Flags().StringVarP(&cfg.Proxy, "proxy", "x", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().StringVarP(&cfg.CookieFile, "cookies", "c", "", "Netscape cookies.txt path")
	cmd.Flags().BoolVar(&cfg.NoCache, "no-cache", false, "Disable the on-disk HTTP response cache")
	cmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.Flags().BoolVar(&cfg.Silent, "silent", false, "Suppress progress output")

	return cmd
}

// newCLIProgressCallback renders the ProgressCallback stream from the
// Controller as a single human-readable bar, the same role
// progressbar/v3 plays in the teacher's ProgressManager.
func newCLIProgressCallback(silent bool) hlsgrab.ProgressCallback {
	var bar *progressbar.ProgressBar
	return func(s hlsgrab.Snapshot) {
		if silent {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(100,
				progressbar.OptionSetDescription(s.TaskID),
				progressbar.OptionShowCount(),
			)
		}
		bar.Set(int(s.Progress * 100))
		if s.Status.Terminal() {
			bar.Finish()
			if s.ErrorMessage != "" {
				fmt.Fprintln(os.Stderr, s.TaskID+":", s.ErrorMessage)
			}
		}
	}
}
