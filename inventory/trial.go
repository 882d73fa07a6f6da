// Package inventory runs the per-device credential trials for a discovery
// stream and prints the stream URIs of every device that lets one in.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	onvif "github.com/quocson95/onvif-inventory"
	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/soap"
)

// State is the position of a Trial.
type State int

const (
	Pending State = iota
	Trying
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Trying:
		return "trying"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Attempter opens a session to base with one candidate and returns the
// device's stream URIs.
type Attempter func(ctx context.Context, base string, candidate credentials.Candidate) ([]onvif.StreamResult, error)

// SessionAttempter opens a fresh onvif.Session per attempt.
func SessionAttempter(opts ...soap.Option) Attempter {
	return func(ctx context.Context, base string, candidate credentials.Candidate) ([]onvif.StreamResult, error) {
		session, err := onvif.NewSession(ctx, base, candidate.SOAP(), opts...)
		if err != nil {
			return nil, err
		}
		return onvif.GetStreamURIs(ctx, session)
	}
}

// Attempt is one failed candidate.
type Attempt struct {
	Candidate credentials.Candidate
	Err       error
}

// Outcome is the final state of a Trial.
type Outcome struct {
	State State
	// Candidate and Results are set when State is Succeeded.
	Candidate credentials.Candidate
	Results   []onvif.StreamResult
	// Failed lists the rejected candidates in the order they were tried.
	Failed []Attempt
}

// Tried returns the number of attempts made.
func (o Outcome) Tried() int {
	if o.State == Succeeded {
		return len(o.Failed) + 1
	}
	return len(o.Failed)
}

// Err joins the attempt errors of an exhausted trial.
func (o Outcome) Err() error {
	if o.State != Exhausted {
		return nil
	}
	errs := make([]error, 0, len(o.Failed))
	for _, a := range o.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", a.Candidate, a.Err))
	}
	return errors.Join(errs...)
}

// Trial tries candidates against one device strictly one after another and
// stops at the first that yields stream URIs. It moves from Pending through
// Trying(i) for each candidate index i, and ends in Succeeded or Exhausted.
type Trial struct {
	base       string
	candidates []credentials.Candidate
	attempt    Attempter
	// attemptTimeout bounds each attempt when > 0.
	attemptTimeout time.Duration

	state   State
	index   int
	outcome Outcome
}

func NewTrial(base string, candidates []credentials.Candidate, attempt Attempter, attemptTimeout time.Duration) *Trial {
	return &Trial{
		base:           base,
		candidates:     candidates,
		attempt:        attempt,
		attemptTimeout: attemptTimeout,
	}
}

// State returns the current state and, while Trying, the candidate index.
func (t *Trial) State() (State, int) {
	return t.state, t.index
}

// Run drives the trial to Succeeded or Exhausted. When ctx ends between
// attempts the trial is Exhausted. Exhaustion is not an error.
func (t *Trial) Run(ctx context.Context) Outcome {
	for t.state != Succeeded && t.state != Exhausted {
		t.step(ctx)
	}
	t.outcome.State = t.state
	return t.outcome
}

func (t *Trial) step(ctx context.Context) {
	switch t.state {
	case Pending:
		if len(t.candidates) == 0 {
			t.state = Exhausted
			return
		}
		t.state, t.index = Trying, 0

	case Trying:
		if err := ctx.Err(); err != nil {
			glog.V(1).Infof("Giving up on %s before candidate %d: %v", t.base, t.index+1, err)
			t.state = Exhausted
			return
		}

		candidate := t.candidates[t.index]
		results, err := t.try(ctx, candidate)
		if err == nil {
			t.outcome.Candidate = candidate
			t.outcome.Results = results
			t.state = Succeeded
			return
		}

		glog.V(1).Infof("Candidate %d/%d (%s) failed on %s: %v", t.index+1, len(t.candidates), candidate, t.base, err)
		t.outcome.Failed = append(t.outcome.Failed, Attempt{Candidate: candidate, Err: err})
		t.index++
		if t.index == len(t.candidates) {
			t.state = Exhausted
		}
	}
}

func (t *Trial) try(ctx context.Context, candidate credentials.Candidate) ([]onvif.StreamResult, error) {
	if t.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.attemptTimeout)
		defer cancel()
	}
	return t.attempt(ctx, t.base, candidate)
}
