package device

import (
	"context"
	"fmt"

	"github.com/camstream/onvif"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

const (
	ErrSequenceHalted  = errors.ConstError("discovery sequence halted")
	ErrSessionHalted   = errors.ConstError("session halted, create a new session to retry")
	ErrSequenceStarted = errors.ConstError("discovery sequence already started")
)

// SequenceHaltedError names the step that stopped the discovery sequence and
// wraps the error of that step
type SequenceHaltedError struct {
	Step onvif.CallKind
	Err  error
}

func (e *SequenceHaltedError) Error() string {
	return fmt.Sprintf("%s at %s: %v", ErrSequenceHalted, e.Step, e.Err)
}

func (e *SequenceHaltedError) Unwrap() error { return e.Err }

func (e *SequenceHaltedError) Is(target error) bool {
	return target == ErrSequenceHalted
}

// ProfileSelector picks the profile whose token is used for GetStreamURI
type ProfileSelector func(onvif.ProfileList) (onvif.Profile, bool)

// FirstProfile selects the first profile in server order
func FirstProfile(profiles onvif.ProfileList) (onvif.Profile, bool) {
	if len(profiles) == 0 {
		return onvif.Profile{}, false
	}
	return profiles[0], true
}

// transition is one row of the discovery state machine: in a state, the
// outcome of the expected call moves the session to the next state and
// decides the follow-up call
type transition struct {
	expect onvif.CallKind
	to     ConnectionState
	apply  func(*Session, onvif.Result) string
	next   func(*Orchestrator, *Session) (*Call, error)
}

var transitions = map[ConnectionState]transition{
	Disconnected: {
		expect: onvif.CallGetServices,
		to:     ServicesRetrieved,
		apply:  applyServices,
		next:   followWith(onvif.CallGetDeviceInformation),
	},
	ServicesRetrieved: {
		expect: onvif.CallGetDeviceInformation,
		to:     InformationRetrieved,
		apply:  applyDeviceInformation,
		next:   followWith(onvif.CallGetProfiles),
	},
	InformationRetrieved: {
		expect: onvif.CallGetProfiles,
		to:     ProfilesRetrieved,
		apply:  applyProfiles,
		next:   (*Orchestrator).streamURICall,
	},
	ProfilesRetrieved: {
		expect: onvif.CallGetStreamURI,
		to:     StreamReady,
		apply:  applyStreamURI,
	},
}

// Orchestrator runs the fixed discovery sequence services, device
// information, profiles, stream URI against a session
type Orchestrator struct {
	dispatcher    *Dispatcher
	observer      Observer
	selectProfile ProfileSelector
	logger        zerolog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObserver registers the receiver of per-call notifications
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithProfileSelector replaces the default first-profile choice
func WithProfileSelector(selector ProfileSelector) Option {
	return func(o *Orchestrator) { o.selectProfile = selector }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator issuing its calls through dispatcher
func NewOrchestrator(dispatcher *Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher:    dispatcher,
		selectProfile: FirstProfile,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives s from Disconnected to StreamReady. It stops at the first failed
// step and returns a *SequenceHaltedError; the session then stays where it
// was and has to be replaced to try again.
func (o *Orchestrator) Run(ctx context.Context, s *Session) error {
	if s.halted {
		return ErrSessionHalted
	}
	if s.started {
		return ErrSequenceStarted
	}
	s.started = true

	o.logger.Info().Str("address", s.address).Msg("starting discovery sequence")

	call := &Call{Kind: onvif.CallGetServices, Session: s}
	for call != nil {
		outcome := o.dispatcher.Submit(ctx, *call)

		next, err := o.handle(s, outcome)
		if err != nil {
			s.halted = true
			o.logger.Warn().Err(err).Str("state", s.state.String()).Msg("discovery sequence halted")
			return err
		}
		call = next
	}

	o.logger.Info().Str("address", s.address).Str("uri", s.streamURI).Msg("stream ready")
	return nil
}

// handle applies one outcome to the session and returns the follow-up call,
// nil when the sequence is complete
func (o *Orchestrator) handle(s *Session, outcome Outcome) (*Call, error) {
	t, ok := transitions[s.state]
	if !ok || t.expect != outcome.Kind {
		panic(fmt.Sprintf("device: %s outcome delivered in state %s", outcome.Kind, s.state))
	}

	if !outcome.Success {
		return nil, o.halt(s, outcome.Kind, outcome.Err)
	}

	summary := t.apply(s, outcome.Result)
	s.advance(t.to)
	o.notify(Notification{
		Kind:    outcome.Kind,
		Success: true,
		Summary: summary,
		State:   s.state,
	})

	if t.next == nil {
		return nil, nil
	}
	return t.next(o, s)
}

func (o *Orchestrator) halt(s *Session, step onvif.CallKind, cause error) error {
	err := &SequenceHaltedError{Step: step, Err: cause}
	o.notify(Notification{
		Kind:    step,
		Success: false,
		Summary: fmt.Sprintf("Request failed: %s", step),
		Err:     err,
		State:   s.state,
	})
	return err
}

func (o *Orchestrator) notify(n Notification) {
	if o.observer != nil {
		o.observer(n)
	}
}

func (o *Orchestrator) streamURICall(s *Session) (*Call, error) {
	profile, ok := o.selectProfile(s.Profiles())
	if !ok {
		return nil, o.halt(s, onvif.CallGetStreamURI, &onvif.CallError{
			Kind: onvif.ErrDecodeFailure,
			Call: onvif.CallGetStreamURI,
			Err:  errors.New("no media profile to request a stream URI for"),
		})
	}

	o.logger.Debug().Str("profile", profile.Name).Str("token", profile.Token).Msg("selected profile")
	return &Call{
		Kind:    onvif.CallGetStreamURI,
		Params:  Params{ProfileToken: profile.Token},
		Session: s,
	}, nil
}

func followWith(kind onvif.CallKind) func(*Orchestrator, *Session) (*Call, error) {
	return func(_ *Orchestrator, s *Session) (*Call, error) {
		return &Call{Kind: kind, Session: s}, nil
	}
}

func applyServices(s *Session, r onvif.Result) string {
	s.services = append(onvif.ServiceList(nil), r.(onvif.ServiceList)...)
	return fmt.Sprintf("%d services retrieved", len(s.services))
}

func applyDeviceInformation(s *Session, r onvif.Result) string {
	info := *r.(*onvif.DeviceInformation)
	s.info = &info
	return info.Summary()
}

func applyProfiles(s *Session, r onvif.Result) string {
	s.profiles = append(onvif.ProfileList{}, r.(onvif.ProfileList)...)
	return fmt.Sprintf("%d profiles retrieved", len(s.profiles))
}

func applyStreamURI(s *Session, r onvif.Result) string {
	s.streamURI = string(r.(onvif.StreamURI))
	return "Stream URI retrieved, ready for playback"
}
