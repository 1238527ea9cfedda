package trapper

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/resource"
)

// deploymentsCSVTimeLayout matches the platform's expected datetime
// format, offset without a colon
const deploymentsCSVTimeLayout = "2006-01-02T15:04:05-0700"

var deploymentsCSVHeader = []string{"deploymentID", "locationID", "deploymentStart", "deploymentEnd", "cameraModel"}

// DeploymentRow is one line of the deployments summary table
type DeploymentRow struct {
	DeploymentID string
	LocationID   string
	Start        time.Time
	End          time.Time
	CameraModel  string
}

// WriteDeploymentsCSV writes the deployments summary table
func WriteDeploymentsCSV(path string, rows []DeploymentRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create deployments table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(deploymentsCSVHeader); err != nil {
		return fmt.Errorf("failed to write deployments table: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.DeploymentID,
			row.LocationID,
			row.Start.Format(deploymentsCSVTimeLayout),
			row.End.Format(deploymentsCSVTimeLayout),
			row.CameraModel,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write deployments table: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush deployments table: %w", err)
	}
	return nil
}

// CSVTemplateOptions configures the deployments.csv template generator
type CSVTemplateOptions struct {
	// DataPath is the root directory holding raw collections
	DataPath string
	// OutputPath receives deployments.csv (default DataPath)
	OutputPath string
	// Collections restricts the walk; empty means every subdirectory
	Collections []string
	// Location is the zone the camera clocks were set in (default UTC)
	Location  *time.Location
	IgnoreDST bool
	// Extensions is the media allow-list (default resource.DefaultExtensions)
	Extensions []string
	Logger     logging.Logger
}

// GenerateCSVTemplate walks raw deployments and derives a
// deployments.csv seed table from their media metadata: slugified
// deployment id, location id, observed capture window, camera model.
// Deployments without any dated media are omitted.
func GenerateCSVTemplate(ctx context.Context, opts CSVTemplateOptions) (string, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = resource.DefaultExtensions
	}
	if opts.OutputPath == "" {
		opts.OutputPath = opts.DataPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	collections, err := listCollections(opts.DataPath, opts.Collections)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(opts.OutputPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var rows []DeploymentRow
	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		colPath := filepath.Join(opts.DataPath, collection)
		deployments, err := listDeployments(colPath, nil)
		if err != nil {
			return "", err
		}

		for _, deployment := range deployments {
			row, ok := templateRow(colPath, deployment, opts)
			if !ok {
				continue
			}
			rows = append(rows, row)
		}
	}

	outFile := filepath.Join(opts.OutputPath, "deployments.csv")
	if err := WriteDeploymentsCSV(outFile, rows); err != nil {
		return "", err
	}

	logger.Info(ctx, "deployments template generated", logging.Fields{"path": outFile, "rows": len(rows)})
	return outFile, nil
}

// templateRow derives one table row from a deployment's media files
func templateRow(colPath, deployment string, opts CSVTemplateOptions) (DeploymentRow, bool) {
	dir := filepath.Join(colPath, deployment)
	files, err := collectMedia(dir, opts.Extensions)
	if err != nil || len(files) == 0 {
		return DeploymentRow{}, false
	}

	row := DeploymentRow{DeploymentID: Slugify(deployment)}
	if _, rest, found := strings.Cut(row.DeploymentID, "-"); found {
		row.LocationID = rest
	}

	for _, file := range files {
		path := filepath.Join(dir, file)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		meta, err := resource.ExtractExif(content)
		if err != nil {
			continue
		}
		if _, ok := meta[resource.TagFileModifyDate]; !ok {
			if info, statErr := os.Stat(path); statErr == nil {
				meta[resource.TagFileModifyDate] = info.ModTime().In(opts.Location).Format("2006:01:02 15:04:05")
			}
		}

		captured, err := resource.ParseDateRecorded(meta, opts.Location, resource.DateOptions{
			Fallback:  true,
			IgnoreDST: opts.IgnoreDST,
		})
		if err != nil {
			continue
		}

		if row.Start.IsZero() || captured.Before(row.Start) {
			row.Start = captured
		}
		if row.End.IsZero() || captured.After(row.End) {
			row.End = captured
		}
		if row.CameraModel == "" {
			row.CameraModel = resource.CameraModel(meta)
		}
	}

	if row.Start.IsZero() {
		return DeploymentRow{}, false
	}
	return row, true
}
