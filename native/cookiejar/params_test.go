package cookiejar

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, scenarioPolicy().Validate())

	cases := map[string]Policy{
		"nil cookie value":      {Period: time.Hour},
		"negative cookie value": {CookieValue: big.NewInt(-1), Period: time.Hour},
		"zero period":           {CookieValue: big.NewInt(1)},
		"sub-second period":     {CookieValue: big.NewInt(1), Period: 500 * time.Millisecond},
		"cookie value too wide": {CookieValue: new(big.Int).Lsh(big.NewInt(1), 256), Period: time.Hour},
	}
	for name, policy := range cases {
		require.ErrorIs(t, policy.Validate(), ErrInvalidPolicy, name)
	}

	zeroCeiling := Policy{CookieValue: big.NewInt(1), Period: time.Second}
	require.NoError(t, zeroCeiling.Validate(), "a zero ceiling is legal")
}

func TestPolicyConversions(t *testing.T) {
	p := scenarioPolicy()
	require.Equal(t, uint64(1000), p.WindowSeconds())

	units, err := p.CookiesToUnits(3)
	require.NoError(t, err)
	require.Equal(t, "6000000000000000000", units.String())

	require.Equal(t, int64(2), p.UnitsToCookies(eth(5)).Int64())
	require.Zero(t, p.UnitsToCookies(nil).Sign())
	require.Zero(t, p.UnitsToCookies(big.NewInt(-3)).Sign())

	wide := Policy{CookieValue: new(big.Int).Lsh(big.NewInt(1), 250), Period: time.Second}
	_, err = wide.CookiesToUnits(math.MaxUint64)
	require.ErrorIs(t, err, ErrInvalidRequest)

	var empty Policy
	_, err = empty.CookiesToUnits(1)
	require.ErrorIs(t, err, ErrInvalidPolicy)
}
