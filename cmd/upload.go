package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/smazurov/failsafe/internal/device"
)

var imageFields = []string{
	device.ImageFirmware,
	device.ImageFIP,
	device.ImageBL2,
	device.ImageGPT,
	device.ImageInitramfs,
}

// progressPrinter renders upload progress at most every interval.
type progressPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
	start    time.Time
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	now := time.Now()
	return &progressPrinter{w: w, interval: 200 * time.Millisecond, start: now}
}

func (p *progressPrinter) update(sent, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if sent < total && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	fmt.Fprintf(p.w, "\r%s", formatProgress(sent, total, now.Sub(p.start)))
	if sent >= total {
		fmt.Fprintln(p.w)
	}
}

func formatProgress(sent, total int64, elapsed time.Duration) string {
	pct := 100.0
	if total > 0 {
		pct = float64(sent) * 100 / float64(total)
	}
	rate := ""
	if secs := elapsed.Seconds(); secs > 0 {
		rate = fmt.Sprintf(" %s/s", humanize.IBytes(uint64(float64(sent)/secs)))
	}
	return fmt.Sprintf("%5.1f%% %s / %s%s", pct, humanize.IBytes(uint64(sent)), humanize.IBytes(uint64(total)), rate)
}

// CreateUploadCmd creates the upload command.
func CreateUploadCmd() *cobra.Command {
	var flags deviceFlags
	var field string
	var layout string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload an image for validation",
		Long: `Streams the image to /upload. The device replies with the size and MD5 it computed; ` +
			`run "failsafe flash" afterwards to write it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			valid := false
			for _, f := range imageFields {
				if f == field {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("unknown image type %q (want one of %v)", field, imageFields)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			logger := flags.logger("upload")
			client, err := flags.client(logger)
			if err != nil {
				return err
			}

			req := device.UploadRequest{
				Field:     field,
				FileName:  filepath.Base(args[0]),
				Body:      f,
				Size:      info.Size(),
				MTDLayout: layout,
			}
			if !quiet && !flags.jsonOut {
				req.Progress = newProgressPrinter(c.ErrOrStderr()).update
			}

			ctx, cancel := signalContext(c.Context())
			defer cancel()
			res, err := client.Upload(ctx, req)
			if err != nil {
				return err
			}

			text := fmt.Sprintf("size: %s (%s)\nmd5:  %s", res.Size, humanize.IBytes(uint64(max(res.SizeBytes(), 0))), res.MD5)
			if res.MTDLayout != "" {
				text += "\nmtd layout: " + res.MTDLayout
			}
			return flags.print(c.OutOrStdout(), res, text)
		},
	}
	cmd.Flags().StringVarP(&field, "type", "t", device.ImageFirmware, "Image type (firmware, fip, bl2, gpt, initramfs)")
	cmd.Flags().StringVar(&layout, "mtd-layout", "", "MTD partition layout to flash with")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	flags.bind(cmd)
	return cmd
}
