package resolver

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	reg, g := testWorld(t)
	promReg := prometheus.NewPedanticRegistry()
	r := newTestResolver(t, Config{Registry: reg, Provider: g, Metrics: promReg})

	_, err := r.Resolve(context.Background(), "Clean")
	require.NoError(t, err)

	families, err := promReg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "sigil_resolutions_total")
}

func TestMetricsUnregisteredByDefault(t *testing.T) {
	reg, g := testWorld(t)
	ctx := context.Background()

	// Without a registerer the counters stay private, so resolvers built
	// back to back (the CLI makes one per watch reload) never collide.
	a := newTestResolver(t, Config{Registry: reg, Provider: g})
	b := newTestResolver(t, Config{Registry: reg, Provider: g})
	_, err := a.Resolve(ctx, "Clean")
	require.NoError(t, err)
	_, err = b.Resolve(ctx, "Clean")
	require.NoError(t, err)
}
