package lockmgr

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Comparer decides whether two owners are the same. It is called with the
// owner of the held lock first and the owner of the request second.
type Comparer func(held, requested any) bool

// Hook is an external collaborator invoked with a batch of locks. OnAcquire
// is called once per successful acquire pass, OnRelease once per release
// batch (explicit or automatic expiry). Returning an error cancels the batch.
type Hook func(ctx context.Context, locks []*Lock) error

// ErrorHandler receives errors nobody waits for, i.e. failures of OnRelease
// during automatic expiry.
type ErrorHandler func(err error, locks []*Lock)

// AcquireErrorFunc builds the error returned when an acquire fails because
// of conflicts.
type AcquireErrorFunc func(conflicts []Conflict) error

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Config configures a LockManager. Start from DefaultConfig, the zero Config
// has an empty delimiter and therefore no key hierarchy.
type Config struct {
	// Comparer compares owners, DefaultComparer (strict equality) if nil
	Comparer Comparer
	// Delimiter separates the segments of hierarchical keys, "" disables the
	// hierarchy so every key is its own root
	Delimiter string
	// OnAcquire persists or replicates acquired locks (optional)
	OnAcquire Hook
	// OnRelease persists or replicates released locks (optional)
	OnRelease Hook
	// OnError receives failures of automatic expiry, logged if nil
	OnError ErrorHandler
	// Timeout after which a lock that was not re-acquired is released
	// automatically, 0 disables auto expiry
	Timeout time.Duration
	// AcquireError builds the conflict error, NewAcquireError if nil
	AcquireError AcquireErrorFunc
}

// DefaultConfig returns the default configuration: "/" as delimiter, no
// timeout and no-op hooks.
func DefaultConfig() Config {
	return Config{
		Delimiter: "/",
	}
}

// validate checks the configuration and fills in the defaults
func (c Config) validate() (Config, error) {
	if c.Timeout < 0 {
		return c, invalidArgument("config.Timeout", "not negative", c.Timeout)
	}
	if c.Comparer == nil {
		c.Comparer = DefaultComparer
	}
	if c.OnAcquire == nil {
		c.OnAcquire = noopHook
	}
	if c.OnRelease == nil {
		c.OnRelease = noopHook
	}
	if c.OnError == nil {
		c.OnError = logExpiryError
	}
	if c.AcquireError == nil {
		c.AcquireError = NewAcquireError
	}
	return c, nil
}

// String returns a formatted string representation of the configuration
func (c Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// nil and the built in defaults both render as default
	isSet := func(fn, def any) string {
		v := reflect.ValueOf(fn)
		if v.IsNil() || v.Pointer() == reflect.ValueOf(def).Pointer() {
			return "default"
		}
		return "custom"
	}

	addSection("Lock Manager")
	if c.Delimiter == "" {
		addField("Delimiter", "(none, hierarchy disabled)")
	} else {
		addField("Delimiter", fmt.Sprintf("%q", c.Delimiter))
	}
	if c.Timeout == 0 {
		addField("Timeout", "disabled")
	} else {
		addField("Timeout", c.Timeout.String())
	}

	addSection("Collaborators")
	addField("Comparer", isSet(c.Comparer, DefaultComparer))
	addField("OnAcquire", isSet(c.OnAcquire, noopHook))
	addField("OnRelease", isSet(c.OnRelease, noopHook))
	addField("OnError", isSet(c.OnError, logExpiryError))
	addField("AcquireError", isSet(c.AcquireError, NewAcquireError))

	return sb.String()
}

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

// DefaultComparer compares owners with ==. Byte slices are compared by
// content. Owners that cannot be compared with == (slices, maps, functions or
// structs holding them) are never equal.
func DefaultComparer(held, requested any) bool {
	if held == nil || requested == nil {
		return held == nil && requested == nil
	}
	if a, ok := held.([]byte); ok {
		b, ok := requested.([]byte)
		return ok && bytes.Equal(a, b)
	}
	return strictEqual(held, requested)
}

// strictEqual is == on interfaces, which panics when both dynamic values are
// of the same non comparable type
func strictEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

func noopHook(context.Context, []*Lock) error { return nil }

func logExpiryError(err error, locks []*Lock) {
	Logger.Errorf("automatic release of %d lock(s) failed, retrying later: %v", len(locks), err)
}
