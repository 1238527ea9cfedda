package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/output"
	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
)

// Naming conventions for collection and deployment directories
var (
	collectionPattern = regexp.MustCompile(`^R[0-9]{4}(_.+)?$`)
	deploymentPattern = regexp.MustCompile(`^[Rr][0-9]{4}-([0-9A-Za-z_-]+)(_.+)?$`)
)

// Report actions recorded by the collection validator
const (
	ActionCollectionNames = "validate_collection_names"
	ActionDeploymentNames = "validate_deployment_names"
)

// LocationDirectory provides the set of known location identifiers,
// fetched once per run. Implemented by pkg/trapper against the remote
// registry; tests substitute a fixture.
type LocationDirectory interface {
	LocationIDs(ctx context.Context) (map[string]bool, error)
}

// CollectionValidatorOptions configures a collection naming run
type CollectionValidatorOptions struct {
	// DataPath is the root directory holding collection directories
	DataPath string
	// Collections restricts the run to the named collections; empty
	// means every immediate subdirectory of DataPath
	Collections []string
	// Locations enables location-ID membership checks when non-nil
	Locations LocationDirectory
	// MaxWorkers bounds concurrent deployment checks (default 4)
	MaxWorkers int
	Logger     logging.Logger
	Events     *output.Hub
}

// CollectionValidator checks collection and deployment directory names
// against the project naming conventions
type CollectionValidator struct {
	opts   CollectionValidatorOptions
	logger logging.Logger
}

// NewCollectionValidator creates a validator with defaults applied
func NewCollectionValidator(opts CollectionValidatorOptions) *CollectionValidator {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &CollectionValidator{opts: opts, logger: logger}
}

// Run validates every selected collection and returns the finished
// report. Only resource-acquisition failures (unreadable data path,
// unreachable location registry) are returned as errors; naming
// violations are recorded in the report.
func (v *CollectionValidator) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New("Collection validation")
	defer rep.Finish()

	var locationIDs map[string]bool
	if v.opts.Locations != nil {
		ids, err := v.opts.Locations.LocationIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch location ids: %w", err)
		}
		locationIDs = ids
		v.logger.Info(ctx, "fetched location registry", logging.Fields{"locations": len(ids)})
	}

	collections, err := v.selectCollections()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		v.validateCollection(ctx, collection, locationIDs, rep, &mu)
	}

	return rep, nil
}

// selectCollections resolves the collection list to process
func (v *CollectionValidator) selectCollections() ([]string, error) {
	return selectCollections(v.opts.DataPath, v.opts.Collections)
}

// selectCollections returns the explicit list when given, otherwise
// every immediate subdirectory of the data path
func selectCollections(dataPath string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}

	entries, err := os.ReadDir(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read data path: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// validateCollection checks one collection's name and all of its
// non-empty deployment directories
func (v *CollectionValidator) validateCollection(ctx context.Context, collection string, locationIDs map[string]bool, rep *report.Report, mu *sync.Mutex) {
	output.Emit(v.opts.Events, output.Event{Kind: output.EventCollectionStart, Collection: collection})

	if !collectionPattern.MatchString(collection) {
		mu.Lock()
		rep.AddError(collection, ActionCollectionNames,
			fmt.Sprintf("collection name %q does not match the expected format RNNNN or RNNNN_suffix", collection), nil)
		mu.Unlock()
	} else {
		mu.Lock()
		rep.AddSuccess(collection, ActionCollectionNames, "", nil)
		mu.Unlock()
	}

	deployments, err := v.listDeployments(collection)
	if err != nil {
		mu.Lock()
		rep.AddError(collection, ActionDeploymentNames, err.Error(), nil)
		mu.Unlock()
		return
	}

	semaphore := make(chan struct{}, v.opts.MaxWorkers)
	var wg sync.WaitGroup

	for _, deployment := range deployments {
		semaphore <- struct{}{}
		wg.Add(1)

		go func(deployment string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			output.Emit(v.opts.Events, output.Event{Kind: output.EventDeploymentStart, Collection: collection, Deployment: deployment})
			v.validateDeploymentName(ctx, collection, deployment, locationIDs, rep, mu)
			output.Emit(v.opts.Events, output.Event{Kind: output.EventDeploymentComplete, Collection: collection, Deployment: deployment})
		}(deployment)
	}

	wg.Wait()
}

// listDeployments returns the non-empty deployment directories of a
// collection. Empty directories are skipped entirely.
func (v *CollectionValidator) listDeployments(collection string) ([]string, error) {
	dir := filepath.Join(v.opts.DataPath, collection)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		contents, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil || len(contents) == 0 {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// validateDeploymentName runs the three naming checks for one
// deployment directory. All checks passing yields one success entry.
func (v *CollectionValidator) validateDeploymentName(ctx context.Context, collection, deployment string, locationIDs map[string]bool, rep *report.Report, mu *sync.Mutex) {
	identifier := collection + ":" + deployment

	if !deploymentPattern.MatchString(deployment) {
		mu.Lock()
		rep.AddError(identifier, ActionDeploymentNames,
			fmt.Sprintf("deployment name %q does not match the expected format RNNNN-locationID or RNNNN-locationID_suffix", deployment), nil)
		mu.Unlock()
		return
	}

	prefix, locationID := splitDeploymentName(deployment)

	if !strings.EqualFold(prefix, collection) {
		mu.Lock()
		rep.AddError(identifier, ActionDeploymentNames,
			fmt.Sprintf("deployment %q does not belong to collection %q", deployment, collection), nil)
		mu.Unlock()
		return
	}

	if locationIDs != nil && !locationIDs[strings.ToLower(locationID)] {
		mu.Lock()
		rep.AddError(identifier, ActionDeploymentNames,
			fmt.Sprintf("location id %q is not registered", strings.ToLower(locationID)), nil)
		mu.Unlock()
		return
	}

	v.logger.Debug(ctx, "deployment name valid", logging.Fields{"collection": collection, "deployment": deployment})
	mu.Lock()
	rep.AddSuccess(identifier, ActionDeploymentNames, "", nil)
	mu.Unlock()
}

// splitDeploymentName extracts the collection prefix and location id
// from a name already known to match deploymentPattern
func splitDeploymentName(deployment string) (prefix, locationID string) {
	prefix, rest, _ := strings.Cut(deployment, "-")
	locationID, _, _ = strings.Cut(rest, "_")
	return prefix, locationID
}
