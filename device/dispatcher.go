package device

import (
	"context"
	"time"

	"github.com/camstream/onvif"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Transport performs the network exchange of one call and decodes the answer
type Transport interface {
	Do(ctx context.Context, req onvif.Request) (onvif.Result, error)
}

// Dispatcher executes one protocol call at a time per session and turns each
// into exactly one Outcome
type Dispatcher struct {
	transport Transport
	logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher over transport
func NewDispatcher(transport Transport, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{transport: transport, logger: logger}
}

// Submit runs call and blocks until its outcome is available. Submitting while
// another call is outstanding on the same session is a programming error and
// panics.
func (d *Dispatcher) Submit(ctx context.Context, call Call) Outcome {
	s := call.Session
	if s == nil {
		panic("device: call submitted without a session")
	}
	if !s.inflight.CompareAndSwap(false, true) {
		panic("device: " + call.Kind.String() + " submitted while another call is outstanding")
	}
	defer s.inflight.Store(false)

	req := s.request(call.Kind)
	req.ProfileToken = call.Params.ProfileToken

	start := time.Now()
	result, err := d.transport.Do(ctx, req)
	elapsed := time.Since(start)

	outcome := decode(call.Kind, result, err)

	protocolCallsTotal.WithLabelValues(call.Kind.String(), resultLabel(outcome)).Inc()
	protocolCallDuration.WithLabelValues(call.Kind.String()).Observe(elapsed.Seconds())

	if outcome.Success {
		d.logger.Debug().Str("call", call.Kind.String()).Dur("elapsed", elapsed).Msg("call succeeded")
	} else {
		d.logger.Debug().Str("call", call.Kind.String()).Dur("elapsed", elapsed).Err(outcome.Err).Msg("call failed")
	}

	return outcome
}

// decode checks that the result matches the call and classifies the error
func decode(kind onvif.CallKind, result onvif.Result, err error) Outcome {
	if err != nil {
		if _, ok := failureKind(err); !ok {
			err = &onvif.CallError{Kind: onvif.ErrTransportFailure, Call: kind, Err: err}
		}
		return failed(kind, err)
	}

	if isNilResult(result) {
		return failed(kind, &onvif.CallError{
			Kind: onvif.ErrMalformedResponse,
			Call: kind,
			Err:  errors.New("empty result"),
		})
	}
	if result.CallKind() != kind {
		return failed(kind, &onvif.CallError{
			Kind: onvif.ErrMalformedResponse,
			Call: kind,
			Err:  errors.Errorf("unexpected %s result", result.CallKind()),
		})
	}

	return succeeded(kind, result)
}

func isNilResult(result onvif.Result) bool {
	switch r := result.(type) {
	case nil:
		return true
	case *onvif.DeviceInformation:
		return r == nil
	case onvif.StreamURI:
		return r == ""
	case onvif.ServiceList:
		return len(r) == 0
	}
	return false
}

func failureKind(err error) (errors.ConstError, bool) {
	return onvif.KindOf(err)
}
