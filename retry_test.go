package machina

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryBuilder(t *testing.T) {
	t.Parallel()

	p := Retry(3).WithExponentialBackoff(100 * time.Millisecond).Policy()
	require.Equal(t, 3, p.MaxRetries)
	require.Equal(t, BackoffExponential, p.Backoff)
	require.Equal(t, 100*time.Millisecond, p.BaseDelay)
	require.Equal(t, 400*time.Millisecond, p.Delay(3))

	p = Retry(2).WithLinearBackoff(time.Second).Policy()
	require.Equal(t, BackoffLinear, p.Backoff)
	require.Equal(t, 2*time.Second, p.Delay(2))
}

func TestRetryBuilder_Immediate(t *testing.T) {
	t.Parallel()

	p := Retry(5).Immediate().Policy()
	require.Equal(t, 5, p.MaxRetries)
	require.Zero(t, p.BaseDelay)
	require.Zero(t, p.Delay(4))
}

func TestRetryBuilder_ClampsNegativeBudget(t *testing.T) {
	t.Parallel()

	require.Zero(t, Retry(-2).Policy().MaxRetries)
}
