package fake

import (
	"context"
	"fmt"
	"testing"

	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/stretchr/testify/require"
)

func TestClient_Deterministic(t *testing.T) {
	c := New()
	ctx := context.Background()

	notFound := 0
	for i := 0; i < 100; i++ {
		tn := fmt.Sprintf("tn%03d", i)
		a, errA := c.Lookup(ctx, tn)
		b, errB := c.Lookup(ctx, tn)
		require.Equal(t, errA, errB)
		if errA != nil {
			require.ErrorIs(t, errA, remote.ErrNotFound)
			notFound++
			continue
		}
		require.Equal(t, a.Status, b.Status)
		require.Equal(t, fmt.Sprintf("TN%03d", i), a.TrackingNumber)
	}
	require.Less(t, notFound, 100)
}
