package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
	"github.com/ijfvianauhu/wildintel-tools/pkg/uploader"
)

// UploadFlags holds upload command flags
type UploadFlags struct {
	Server     string
	Username   string
	Password   string
	Insecure   bool
	Parallel   int
	Bandwidth  string
	ReportFile string
	Output     string
}

var uploadFlags UploadFlags

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file> <remote-path>",
		Short: "Upload a package to the media server",
		Long: `Transfer a file to the media server in resumable chunks. An
interrupted upload leaves a sidecar next to the file; rerunning the
command resumes from the chunks already accepted by the server.`,
		Args: cobra.ExactArgs(2),
		RunE: runUpload,
	}

	cmd.Flags().StringVar(&uploadFlags.Server, "server", "", "upload server URL (default from config)")
	cmd.Flags().StringVar(&uploadFlags.Username, "username", "", "upload server username (default from config)")
	cmd.Flags().StringVar(&uploadFlags.Password, "password", "", "upload server password (default from config)")
	cmd.Flags().BoolVar(&uploadFlags.Insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().IntVarP(&uploadFlags.Parallel, "parallel", "p", 0, "concurrent chunk transfers (default from config)")
	cmd.Flags().StringVarP(&uploadFlags.Bandwidth, "bandwidth", "b", "", "bandwidth limit (e.g. \"10M\", \"1G\")")
	cmd.Flags().StringVar(&uploadFlags.ReportFile, "report", "", "write the run report to a YAML file")
	cmd.Flags().StringVarP(&uploadFlags.Output, "output", "o", "human", "report format: human, json")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	filePath, remotePath := args[0], args[1]

	p, err := newPipeline()
	if err != nil {
		return err
	}

	server := uploadFlags.Server
	if server == "" {
		server = p.cfg.Uploader.ServerURL
	}
	if server == "" {
		p.close()
		return fmt.Errorf("no upload server configured; set uploader.server_url or pass --server")
	}
	username := uploadFlags.Username
	if username == "" {
		username = p.cfg.Uploader.Username
	}
	password := uploadFlags.Password
	if password == "" {
		password = p.cfg.Uploader.Password
	}
	parallel := uploadFlags.Parallel
	if parallel < 1 {
		parallel = p.cfg.Uploader.MaxParallel
	}

	bandwidth := uploadFlags.Bandwidth
	if bandwidth == "" {
		bandwidth = p.cfg.Uploader.Bandwidth
	}
	var bandwidthLimit int64
	if bandwidth != "" {
		limit, err := humanize.ParseBytes(bandwidth)
		if err != nil {
			p.close()
			return fmt.Errorf("invalid bandwidth limit: %w", err)
		}
		bandwidthLimit = int64(limit)
	}

	u := uploader.New(uploader.Options{
		ServerURL:      server,
		Username:       username,
		Password:       password,
		VerifyTLS:      p.cfg.Uploader.VerifyTLS && !uploadFlags.Insecure,
		MaxParallel:    parallel,
		BandwidthLimit: bandwidthLimit,
		Logger:         p.logger,
		Events:         p.hub,
	})

	rep := report.New("upload")
	if err := u.Upload(ctx, filePath, remotePath); err != nil {
		rep.AddError(filePath, "upload", err.Error(), map[string]interface{}{
			"remote": remotePath,
		})
	} else {
		rep.AddSuccess(filePath, "upload", "file uploaded", map[string]interface{}{
			"remote": remotePath,
		})
	}

	return p.finish(rep, uploadFlags.ReportFile, uploadFlags.Output)
}
