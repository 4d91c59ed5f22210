package cookiejar

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
)

// Policy is the immutable claim configuration of a jar.
type Policy struct {
	// CookieValue converts one cookie into underlying token units.
	CookieValue *big.Int
	// Period is the length of the trailing allowance window. Only whole
	// seconds count.
	Period time.Duration
	// MaxPerPeriod caps the cookies a member may claim inside any window.
	MaxPerPeriod uint64
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.CookieValue == nil || p.CookieValue.Sign() <= 0 {
		return fmt.Errorf("%w: cookie value must be positive", ErrInvalidPolicy)
	}
	if _, overflow := uint256.FromBig(p.CookieValue); overflow {
		return fmt.Errorf("%w: cookie value exceeds 256 bits", ErrInvalidPolicy)
	}
	if p.Period < time.Second {
		return fmt.Errorf("%w: period must be at least one second", ErrInvalidPolicy)
	}
	return nil
}

// Clone returns a deep copy.
func (p Policy) Clone() Policy {
	out := p
	if p.CookieValue != nil {
		out.CookieValue = new(big.Int).Set(p.CookieValue)
	}
	return out
}

// WindowSeconds returns the window length in whole seconds.
func (p Policy) WindowSeconds() uint64 {
	return uint64(p.Period / time.Second)
}

// CookiesToUnits converts a cookie amount into underlying units, failing when
// the product does not fit in 256 bits.
func (p Policy) CookiesToUnits(cookies uint64) (*big.Int, error) {
	if p.CookieValue == nil || p.CookieValue.Sign() <= 0 {
		return nil, fmt.Errorf("%w: cookie value must be positive", ErrInvalidPolicy)
	}
	value, overflow := uint256.FromBig(p.CookieValue)
	if overflow {
		return nil, fmt.Errorf("%w: cookie value out of range", ErrInvalidPolicy)
	}
	units, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(cookies), value)
	if overflow {
		return nil, fmt.Errorf("%w: %d cookies overflow token units", ErrInvalidRequest, cookies)
	}
	return units.ToBig(), nil
}

// UnitsToCookies converts a unit balance into whole cookies, rounding down.
func (p Policy) UnitsToCookies(units *big.Int) *big.Int {
	if units == nil || units.Sign() <= 0 || p.CookieValue == nil || p.CookieValue.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(units, p.CookieValue)
}
