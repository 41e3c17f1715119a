// Package osc sends sound-control messages to the external synthesis
// engine over UDP. All sends are fire-and-forget: failures are logged with
// destination and address, never returned to the event path.
package osc

import (
	"fmt"
	"log/slog"
	"strings"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/digitorchestra/server/internal/metrics"
	"github.com/digitorchestra/server/internal/show"
)

// Addresses of the solo activation stream.
const (
	addrSoloHidden1 = "/solo/hidden1"
	addrSoloHidden2 = "/solo/hidden2"
	addrSoloOutput  = "/solo/output"
)

// Sender encodes and sends OSC messages to a single UDP destination.
type Sender struct {
	client *goosc.Client
	host   string
	port   int
}

// NewSender creates a sender for the given destination. No connection is
// established; OSC over UDP is connectionless.
func NewSender(host string, port int) *Sender {
	return &Sender{
		client: goosc.NewClient(host, port),
		host:   host,
		port:   port,
	}
}

// SendSoloActivations streams the full network activations as three
// addressed messages: /solo/hidden1 (128 floats), /solo/hidden2 (64
// floats), /solo/output (10 floats).
func (s *Sender) SendSoloActivations(hidden1, hidden2, output []float64) {
	if err := s.sendVector(addrSoloHidden1, hidden1); err != nil {
		s.logSendError("solo", addrSoloHidden1, err)
		return
	}
	if err := s.sendVector(addrSoloHidden2, hidden2); err != nil {
		s.logSendError("solo", addrSoloHidden2, err)
		return
	}
	if err := s.sendVector(addrSoloOutput, output); err != nil {
		s.logSendError("solo", addrSoloOutput, err)
		return
	}

	metrics.OscSendsTotal.WithLabelValues("solo", "ok").Inc()
	prediction, confidence := argmax(output)
	slog.Debug("OSC solo sent",
		"hidden1", len(hidden1),
		"hidden2", len(hidden2),
		"output", len(output),
		"prediction", prediction,
		"confidence", confidence,
	)
}

// SendCrowdChord sends one participant's chord on trigger:
// /crowd/<instrument>/chord with payload [username, amp0 .. amp9].
func (s *Sender) SendCrowdChord(instrument, username string, output []float64) {
	address := fmt.Sprintf("/crowd/%s/chord", SanitizeInstrument(instrument))
	if username == "" {
		username = "anon"
	}

	msg := goosc.NewMessage(address)
	msg.Append(username)
	for _, v := range output {
		msg.Append(float32(v))
	}

	if err := s.client.Send(msg); err != nil {
		s.logSendError("crowd", address, err)
		return
	}

	metrics.OscSendsTotal.WithLabelValues("crowd", "ok").Inc()
	_, top := argmax(output)
	slog.Debug("OSC crowd sent", "address", address, "username", username, "top", top)
}

func (s *Sender) sendVector(address string, values []float64) error {
	msg := goosc.NewMessage(address)
	for _, v := range values {
		msg.Append(float32(v))
	}
	return s.client.Send(msg)
}

func (s *Sender) logSendError(path, address string, err error) {
	metrics.OscSendsTotal.WithLabelValues(path, "error").Inc()
	slog.Error("OSC send failed",
		"host", s.host,
		"port", s.port,
		"address", address,
		"error", err,
	)
}

// SanitizeInstrument normalizes an instrument name for use in an OSC
// address: lower-cased, trimmed, empty falls back to the default voice.
func SanitizeInstrument(instrument string) string {
	safe := strings.ToLower(strings.TrimSpace(instrument))
	if safe == "" {
		return show.DefaultInstrument
	}
	return safe
}

// argmax returns the index and value of the largest element. Returns
// (-1, 0) for an empty vector.
func argmax(values []float64) (int, float64) {
	best := -1
	var bestValue float64
	for i, v := range values {
		if best == -1 || v > bestValue {
			best = i
			bestValue = v
		}
	}
	return best, bestValue
}
