// Package bridge is the only path between the UI and the serial supervisor.
//
// The UI can send data and subscribe to inbound data and errors. It cannot
// choose a backend, a worker binary or a device: those come from the kiosk's
// own configuration.
package bridge

import (
	"strings"

	"golang.org/x/time/rate"

	"github.com/banshee-data/kiosk/internal/monitoring"
)

// Default limits on UI sends, per WebSocket client and for the HTTP send
// endpoint as a whole.
const (
	DefaultSendRate  = rate.Limit(50)
	DefaultSendBurst = 20
)

// DataMessage is delivered once per inbound Data event.
type DataMessage struct {
	Data string `json:"data"`
}

// ErrorMessage is delivered once per inbound Error event.
type ErrorMessage struct {
	Error string `json:"error"`
}

// Sender forwards outbound data to the device.
type Sender interface {
	SendData(payload string) error
}

// Bridge fans supervisor events out to UI subscribers and passes UI sends to
// the supervisor.
type Bridge struct {
	sender Sender
	data   *Registry[DataMessage]
	errs   *Registry[ErrorMessage]

	sendRate  rate.Limit
	sendBurst int
	httpLimit *rate.Limiter
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSendRate overrides the UI send limit. rate.Inf disables it.
func WithSendRate(r rate.Limit, burst int) Option {
	return func(b *Bridge) {
		b.sendRate = r
		b.sendBurst = burst
	}
}

// New returns a Bridge sending through sender.
func New(sender Sender, opts ...Option) *Bridge {
	b := &Bridge{
		sender:    sender,
		data:      NewRegistry[DataMessage](),
		errs:      NewRegistry[ErrorMessage](),
		sendRate:  DefaultSendRate,
		sendBurst: DefaultSendBurst,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.httpLimit = b.newLimiter()
	return b
}

func (b *Bridge) newLimiter() *rate.Limiter {
	return rate.NewLimiter(b.sendRate, b.sendBurst)
}

// EnsureTerminator appends "\r\n" unless data already ends with "\n".
func EnsureTerminator(data string) string {
	if strings.HasSuffix(data, "\n") {
		return data
	}
	return data + "\r\n"
}

// SendSerialData terminates data and hands it to the supervisor.
func (b *Bridge) SendSerialData(data string) error {
	return b.sender.SendData(EnsureTerminator(data))
}

// OnSerialData subscribes fn to inbound data.
func (b *Bridge) OnSerialData(fn func(DataMessage)) *Subscription {
	return b.data.Subscribe(fn)
}

// OnSerialError subscribes fn to inbound errors.
func (b *Bridge) OnSerialError(fn func(ErrorMessage)) *Subscription {
	return b.errs.Subscribe(fn)
}

// DataReceived publishes an inbound payload.
func (b *Bridge) DataReceived(payload string) {
	b.data.Publish(DataMessage{Data: payload})
}

// Error publishes an inbound error.
func (b *Bridge) Error(message string) {
	b.errs.Publish(ErrorMessage{Error: message})
}

// Connected is not surfaced to the UI.
func (b *Bridge) Connected() {
	monitoring.Logf("bridge: serial connected, %d data and %d error subscribers", b.data.Len(), b.errs.Len())
}
