package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/auth"
)

var (
	ErrUnauthorized     = auth.ErrUnauthorized
	ErrPlayerDead       = errors.New("player is dead")
	ErrCooldownActive   = errors.New("cooldown active")
	ErrWeaponCooldown   = fmt.Errorf("weapon %w", ErrCooldownActive)
	ErrShieldCooldown   = fmt.Errorf("shield %w", ErrCooldownActive)
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotDue           = errors.New("strike not due yet")
)

// ValidationError rejects a request before it changes anything, except where
// the caller documents otherwise (an out-of-range strike still costs the
// weapon cooldown).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CooldownError carries when the action becomes available again. It unwraps
// to ErrCooldownActive, ErrWeaponCooldown or ErrShieldCooldown.
type CooldownError struct {
	Action      string
	AvailableAt time.Time
	err         error
}

func (e *CooldownError) Error() string { return e.err.Error() }
func (e *CooldownError) Unwrap() error { return e.err }

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
