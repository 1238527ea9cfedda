package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeDirectory is a canned location registry
type fakeDirectory struct {
	ids map[string]bool
}

func (f *fakeDirectory) LocationIDs(ctx context.Context) (map[string]bool, error) {
	return f.ids, nil
}

// makeDeployment creates a deployment directory holding one media file
func makeDeployment(t *testing.T, root, collection, deployment string) {
	t.Helper()
	dir := filepath.Join(root, collection, deployment)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create deployment dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "IMG_0001.jpg"), []byte("media"), 0644); err != nil {
		t.Fatalf("failed to create media file: %v", err)
	}
}

func TestCollectionNamePattern(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"R0001", true},
		{"R1234_extra", true},
		{"R0001_spring_survey", true},
		{"r0001", false},
		{"R001", false},
		{"R00011", false},
		{"X0001", false},
		{"R0001-", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if err := os.MkdirAll(filepath.Join(root, tt.name), 0755); err != nil {
				t.Fatalf("failed to create collection dir: %v", err)
			}

			v := NewCollectionValidator(CollectionValidatorOptions{DataPath: root})
			rep, err := v.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			byAction := rep.GetByAction(ActionCollectionNames)
			if tt.valid {
				if len(byAction.Successes[tt.name]) != 1 {
					t.Errorf("expected one success for %q, got %d", tt.name, len(byAction.Successes[tt.name]))
				}
				if len(byAction.Errors[tt.name]) != 0 {
					t.Errorf("expected no errors for %q, got %v", tt.name, byAction.Errors[tt.name])
				}
			} else {
				if len(byAction.Errors[tt.name]) != 1 {
					t.Errorf("expected one error for %q, got %d", tt.name, len(byAction.Errors[tt.name]))
				}
			}
		})
	}
}

func TestDeploymentPrefixMismatch(t *testing.T) {
	root := t.TempDir()
	makeDeployment(t, root, "R0001", "R0002-siteA")

	v := NewCollectionValidator(CollectionValidatorOptions{DataPath: root})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byAction := rep.GetByAction(ActionDeploymentNames)
	entries := byAction.Errors["R0001:R0002-siteA"]
	if len(entries) != 1 {
		t.Fatalf("expected exactly one prefix error, got %d", len(entries))
	}
	msg := entries[0].Message
	if !strings.Contains(msg, "R0002-siteA") || !strings.Contains(msg, "R0001") {
		t.Errorf("error message should reference both names, got %q", msg)
	}
}

func TestDeploymentNameFormat(t *testing.T) {
	root := t.TempDir()
	makeDeployment(t, root, "R0001", "badname")

	v := NewCollectionValidator(CollectionValidatorOptions{DataPath: root})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byAction := rep.GetByAction(ActionDeploymentNames)
	if len(byAction.Errors["R0001:badname"]) != 1 {
		t.Fatalf("expected one format error, got %v", byAction.Errors)
	}
	if !strings.Contains(byAction.Errors["R0001:badname"][0].Message, "format") {
		t.Errorf("error should describe the expected format, got %q", byAction.Errors["R0001:badname"][0].Message)
	}
}

func TestValidDeploymentWithRegisteredLocation(t *testing.T) {
	root := t.TempDir()
	makeDeployment(t, root, "R0001", "r0001-siteA_cam2")

	v := NewCollectionValidator(CollectionValidatorOptions{
		DataPath:  root,
		Locations: &fakeDirectory{ids: map[string]bool{"sitea": true}},
	})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !rep.IsSuccess() {
		t.Fatalf("expected success status, got %s: %v", rep.Status(), rep.Errors)
	}

	collections := rep.GetByAction(ActionCollectionNames)
	if len(collections.Successes["R0001"]) != 1 {
		t.Errorf("expected one collection name success, got %d", len(collections.Successes["R0001"]))
	}
	deployments := rep.GetByAction(ActionDeploymentNames)
	if len(deployments.Successes["R0001:r0001-siteA_cam2"]) != 1 {
		t.Errorf("expected one deployment name success, got %v", deployments.Successes)
	}
}

func TestUnregisteredLocation(t *testing.T) {
	root := t.TempDir()
	makeDeployment(t, root, "R0001", "R0001-unknownsite")

	v := NewCollectionValidator(CollectionValidatorOptions{
		DataPath:  root,
		Locations: &fakeDirectory{ids: map[string]bool{"sitea": true}},
	})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byAction := rep.GetByAction(ActionDeploymentNames)
	entries := byAction.Errors["R0001:R0001-unknownsite"]
	if len(entries) != 1 {
		t.Fatalf("expected one location error, got %v", byAction.Errors)
	}
	if !strings.Contains(entries[0].Message, "unknownsite") {
		t.Errorf("error should name the invalid id, got %q", entries[0].Message)
	}
}

func TestLocationCheckDisabledWithoutDirectory(t *testing.T) {
	root := t.TempDir()
	makeDeployment(t, root, "R0001", "R0001-anything")

	v := NewCollectionValidator(CollectionValidatorOptions{DataPath: root})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !rep.IsSuccess() {
		t.Errorf("expected success without location validation, got %s: %v", rep.Status(), rep.Errors)
	}
}

func TestEmptyDeploymentDirectorySkipped(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "R0001", "completely-invalid-name"), 0755); err != nil {
		t.Fatalf("failed to create dirs: %v", err)
	}

	v := NewCollectionValidator(CollectionValidatorOptions{DataPath: root})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Only the collection name entry: the empty deployment produces
	// neither success nor error
	byAction := rep.GetByAction(ActionDeploymentNames)
	if len(byAction.Errors) != 0 || len(byAction.Successes) != 0 {
		t.Errorf("empty deployment should be skipped, got errors=%v successes=%v", byAction.Errors, byAction.Successes)
	}
}

func TestExplicitCollectionList(t *testing.T) {
	root := t.TempDir()
	makeDeployment(t, root, "R0001", "R0001-siteA")
	makeDeployment(t, root, "R0002", "R0002-siteB")

	v := NewCollectionValidator(CollectionValidatorOptions{
		DataPath:    root,
		Collections: []string{"R0001"},
	})
	rep, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byAction := rep.GetByAction(ActionCollectionNames)
	if len(byAction.Successes["R0002"]) != 0 {
		t.Error("collections outside the explicit list should not be processed")
	}
	if len(byAction.Successes["R0001"]) != 1 {
		t.Error("explicitly listed collection should be processed")
	}
}

func TestSplitDeploymentName(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		locationID string
	}{
		{"R0001-siteA", "R0001", "siteA"},
		{"r0001-siteA_cam2", "r0001", "siteA"},
		{"R1234-loc-01_x", "R1234", "loc-01"},
	}

	for _, tt := range tests {
		prefix, locationID := splitDeploymentName(tt.name)
		if prefix != tt.prefix || locationID != tt.locationID {
			t.Errorf("splitDeploymentName(%q) = (%q, %q), want (%q, %q)",
				tt.name, prefix, locationID, tt.prefix, tt.locationID)
		}
	}
}
