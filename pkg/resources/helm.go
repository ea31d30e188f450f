package resources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"gopkg.in/yaml.v3"
)

// HelmInstaller shells out to the helm CLI to install/uninstall chart
// releases. Each call runs under a context timeout and captures stderr
// into the returned error.
type HelmInstaller struct {
	Timeout time.Duration
}

// NewHelmInstaller builds a HelmInstaller with a sane default timeout for
// a chart install/uninstall call.
func NewHelmInstaller() *HelmInstaller {
	return &HelmInstaller{Timeout: 2 * time.Minute}
}

// Install renders values to a temp file and runs `helm install`.
func (h *HelmInstaller) Install(ctx context.Context, releaseName, chartPath, namespace string, values any) error {
	f, err := os.CreateTemp("", "vattid-values-*.yaml")
	if err != nil {
		return fmt.Errorf("helm: create temp values file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(values); err != nil {
		return fmt.Errorf("helm: encode values: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("helm: flush values file: %w", err)
	}

	return h.run(ctx, "install", releaseName, chartPath, "-n", namespace, "-f", f.Name())
}

// Uninstall runs `helm uninstall` for a release.
func (h *HelmInstaller) Uninstall(ctx context.Context, releaseName, namespace string) error {
	return h.run(ctx, "uninstall", "--namespace", namespace, releaseName)
}

func (h *HelmInstaller) run(ctx context.Context, args ...string) error {
	execCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "helm", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("helm %v failed: %w: %s", args, err, stderr.String())
	}
	return nil
}
