package config

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"HELM_CHART_PATH":      "/charts/helmvatti",
		"BUS_BOOTSTRAP_URL":    "localhost:9092",
		"PLATFORM_TOKEN":       "tok",
		"PLATFORM_WORKSPACE":   "12345",
		"GLOBUS_DOMAIN":        "example.org",
		"GLOBUS_CLIENT_ID":     "client",
		"GLOBUS_CLIENT_SECRET": "secret",
		"GLOBUS_SCOPES":        "scope1 scope2",
		"NOTIFY_URL":           "https://notify.example.org/hook",
		"NOTIFY_TOKEN":         "ntok",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Namespace != NamespaceDev {
		t.Errorf("Namespace = %q, want %q", s.Namespace, NamespaceDev)
	}
	if s.LaunchTopic != "pipeline-launch" {
		t.Errorf("LaunchTopic = %q, want pipeline-launch", s.LaunchTopic)
	}
	if s.StatusTopic != "pipeline-status" {
		t.Errorf("StatusTopic = %q, want pipeline-status", s.StatusTopic)
	}
	if s.TimeoutSeconds != 86400 {
		t.Errorf("TimeoutSeconds = %d, want 86400", s.TimeoutSeconds)
	}
}

func TestLoadRejectsBadMinOverlap(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_OVERLAP", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for MIN_OVERLAP out of range")
	}
}

func TestLoadRejectsBadNamespace(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NAMESPACE", "intervene-staging")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for unknown namespace")
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for missing required fields")
	}
}
