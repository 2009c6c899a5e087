package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
)

func notServing() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

func healthStatus(t *testing.T, hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestWarmUpServesOnceLoaded(t *testing.T) {
	paths := writeArtifacts(t, []string{"AWD", "Front"})

	hs := notServing()
	arts := artifact.NewStore(paths, metrics.NewBare(), slog.New(slog.DiscardHandler))
	warmUp(context.Background(), arts, hs, slog.New(slog.DiscardHandler))

	for _, svc := range []string{"", serviceName} {
		if got := healthStatus(t, hs, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("service %q: got %v, want SERVING", svc, got)
		}
	}
}

func TestWarmUpFailureKeepsNotServing(t *testing.T) {
	dir := t.TempDir()
	arts := artifact.NewStore(artifact.Paths{
		Model:  filepath.Join(dir, "missing_model.json"),
		OneHot: filepath.Join(dir, "missing_one_hot.json"),
		Labels: filepath.Join(dir, "missing_labels.json"),
	}, metrics.NewBare(), slog.New(slog.DiscardHandler))

	hs := notServing()
	warmUp(context.Background(), arts, hs, slog.New(slog.DiscardHandler))

	if got := healthStatus(t, hs, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("got %v, want NOT_SERVING", got)
	}
}
