package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nestsync/pkg/exif"
	"nestsync/pkg/feed"
	"nestsync/pkg/logger"
	"nestsync/pkg/media"
	"nestsync/pkg/retry"
	"nestsync/pkg/storage"
	"nestsync/pkg/store"
	"nestsync/pkg/ui"
)

var (
	mediaDownloadDir string
	mediaStudentID   string
	skipExif         bool
	forceDownload    bool
	mediaConcurrent  int
	mediaLatitude    float64
	mediaLongitude   float64
)

// mediaCmd represents the media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Download and tag media for unprocessed records",
	Long: `Download photos and videos for stored records that have not been
processed yet.

Files land in one subdirectory per student, named from the event
timestamp plus the CDN file id. Unless --skip-exif is set, each file is
tagged with its capture timestamp (and location when latitude/longitude
are supplied) so photo services order them correctly.

A record whose media fails to download or tag is logged and retried on
the next run; the rest of the batch continues.`,
	Example: `  # Download everything outstanding
  nestsync media

  # Download into a specific directory without tagging
  nestsync media --dl-dir ~/Pictures/nest -s

  # Tag with the school's location
  nestsync media --latitude 40.7128 --longitude -74.0060

  # Re-download files that already exist
  nestsync media -f`,
	RunE: runMedia,
}

func init() {
	rootCmd.AddCommand(mediaCmd)

	mediaCmd.Flags().StringVar(&mediaDownloadDir, "dl-dir", "", "download directory (default: ./media)")
	mediaCmd.Flags().StringVar(&mediaStudentID, "student-id", "", "process only records for this student identifier")
	mediaCmd.Flags().BoolVarP(&skipExif, "skip-exif", "s", false, "download without writing metadata tags")
	mediaCmd.Flags().BoolVarP(&forceDownload, "force", "f", false, "re-download media even when the file exists")
	mediaCmd.Flags().Float64Var(&mediaLatitude, "latitude", 0, "capture latitude written into media tags")
	mediaCmd.Flags().Float64Var(&mediaLongitude, "longitude", 0, "capture longitude written into media tags")
	mediaCmd.Flags().IntVar(&mediaConcurrent, "concurrent", 3, "number of concurrent downloads")
}

func runMedia(cmd *cobra.Command, args []string) error {
	extraFlags := make(map[string]interface{})
	if mediaDownloadDir != "" {
		extraFlags["dl-dir"] = mediaDownloadDir
	}
	if mediaConcurrent != 3 {
		extraFlags["concurrent"] = mediaConcurrent
	}
	cfg, err := loadConfig(extraFlags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		ui.PrintError("Failed to open record store", err.Error())
		os.Exit(1)
	}
	defer st.Close()

	files, err := storage.NewManager(cfg.Download.Directory)
	if err != nil {
		ui.PrintError("Failed to prepare download directory", err.Error())
		os.Exit(1)
	}

	tagger := exif.NewExifTool(cfg.Exif.Binary)
	if !skipExif && !tagger.Available() {
		ui.PrintError("exiftool not found", cfg.Exif.Binary)
		fmt.Println("Install exiftool or run with --skip-exif to download untagged media.")
		os.Exit(1)
	}

	client := feed.NewClient(feed.Options{
		BaseURL:           cfg.Feed.BaseURL,
		Timeout:           cfg.Download.Timeout,
		UserAgent:         cfg.Feed.UserAgent,
		RequestsPerMinute: cfg.Feed.RequestsPerMinute,
	}, logger.GetLogger())

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Download.RetryAttempts

	opts := media.Options{
		StudentID:   mediaStudentID,
		Concurrency: cfg.Download.Concurrency,
		Force:       forceDownload,
		SkipExif:    skipExif,
	}
	if cmd.Flags().Changed("latitude") && cmd.Flags().Changed("longitude") {
		opts.Latitude = &mediaLatitude
		opts.Longitude = &mediaLongitude
	}

	processor := media.NewProcessor(st, client, files, tagger, retryCfg, logger.GetLogger())
	report, err := processor.Process(opts)
	if err != nil {
		ui.PrintError("Media processing failed", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Processed %d records", report.Scanned))
	ui.PrintCount("downloaded", report.Downloaded)
	ui.PrintCount("skipped", report.Skipped)
	ui.PrintCount("tagged", report.Tagged)
	ui.PrintCount("no media", report.NoMedia)
	ui.PrintCount("failed", report.Failed)

	if report.Failed > 0 {
		os.Exit(1)
	}
	return nil
}
