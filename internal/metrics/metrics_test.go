// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics_test

import (
	"testing"

	"github.com/adrcs/ip400/internal/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveAddsDeltaNotAbsolute(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics()
	m.Observe(metrics.Sample{}, metrics.Sample{Tx: 3, Beacons: 1})
	m.Observe(metrics.Sample{Tx: 3, Beacons: 1}, metrics.Sample{Tx: 5, Beacons: 1})

	var metric dto.Metric
	require.NoError(t, m.TxTotal.Write(&metric))
	require.InDelta(t, 5, metric.GetCounter().GetValue(), 0)
}
