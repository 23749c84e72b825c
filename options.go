package telethon

import (
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gotd/td/clock"
	"go.uber.org/zap"
)

var validate = validator.New()

// Limits contains the pacing limits for API requests.  Telegram signals abuse
// with flood-wait errors which the transport middleware already honours; these
// limits keep a long enumeration from provoking them in the first place.
type Limits struct {
	// RequestsPerMinute paces the list requests.  Zero disables pacing.
	RequestsPerMinute int `json:"requests_per_minute,omitempty" validate:"gte=0"`
	// Burst is the limiter burst size in requests.
	Burst uint `json:"burst,omitempty" validate:"gte=1"`
	// DialogsPerPage caps the page size of dialog list requests.  The server
	// never returns more than 100 regardless of what is requested.
	DialogsPerPage int `json:"dialogs_per_page,omitempty" validate:"gte=1,lte=100"`
}

// DefLimits are the default client limits.
var DefLimits = Limits{
	RequestsPerMinute: 60,
	Burst:             3,
	DialogsPerPage:    100,
}

// Validate validates the limits.
func (l *Limits) Validate() error {
	return validate.Struct(l)
}

// Option is the signature of the client option-setting function.
type Option func(*Client)

// WithLogger sets the logger to use for the client.  If this option is not
// given, the client does not log.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLimits sets the API pacing limits.  Invalid limits are rejected by New.
func WithLimits(l Limits) Option {
	return func(c *Client) {
		c.limits = l
	}
}

// WithClock sets the clock used for conversation timeouts.  The default is the
// system clock; tests substitute a manual one.
func WithClock(cl clock.Clock) Option {
	return func(c *Client) {
		if cl != nil {
			c.clock = cl
		}
	}
}

func validationError(err error) error {
	var vErr validator.ValidationErrors
	if errors.As(err, &vErr) {
		return errors.Wrap(vErr, "validation")
	}
	return err
}
