package resources

import "context"

// DummyBucketManager (an in-memory set of bucket names) and
// DummyChartInstaller (a no-op) are collaborators used by tests that
// exercise CloudHandler's own logic without talking to real infrastructure.
type DummyBucketManager struct {
	Existing map[string]bool
}

func NewDummyBucketManager() *DummyBucketManager {
	return &DummyBucketManager{Existing: map[string]bool{}}
}

func (m *DummyBucketManager) Exists(_ context.Context, name string) (bool, error) {
	return m.Existing[name], nil
}

func (m *DummyBucketManager) Create(_ context.Context, name string, _ BucketPolicy, _ string) error {
	if m.Existing == nil {
		m.Existing = map[string]bool{}
	}
	m.Existing[name] = true
	return nil
}

func (m *DummyBucketManager) CountObjects(context.Context, string) (int, error) { return 0, nil }
func (m *DummyBucketManager) DeleteObjects(context.Context, string) error      { return nil }

func (m *DummyBucketManager) ForceDelete(_ context.Context, name string) error {
	delete(m.Existing, name)
	return nil
}

type DummyChartInstaller struct{}

func (DummyChartInstaller) Install(context.Context, string, string, string, any) error { return nil }
func (DummyChartInstaller) Uninstall(context.Context, string, string) error            { return nil }
