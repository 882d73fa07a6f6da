package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	onvif "github.com/quocson95/onvif-inventory"
	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/soap"
)

var errRejected = errors.New("rejected")

func candidates(n int) []credentials.Candidate {
	out := make([]credentials.Candidate, n)
	for i := range out {
		out[i] = credentials.Candidate{Username: string(rune('a' + i)), Password: "pw"}
	}
	return out
}

// acceptOnly returns an attempter accepting only username and recording
// every candidate it sees.
func acceptOnly(username string, seen *[]string) Attempter {
	return func(ctx context.Context, base string, c credentials.Candidate) ([]onvif.StreamResult, error) {
		*seen = append(*seen, c.Username)
		if c.Username != username {
			return nil, errRejected
		}
		return []onvif.StreamResult{{ProfileName: "main", URI: "rtsp://" + base}}, nil
	}
}

func TestTrialStopsAtFirstWorkingCandidate(t *testing.T) {
	for k := 1; k <= 4; k++ {
		var seen []string
		cands := candidates(4)
		trial := NewTrial("10.0.0.1", cands, acceptOnly(cands[k-1].Username, &seen), 0)

		outcome := trial.Run(context.Background())

		assert.Equal(t, Succeeded, outcome.State)
		assert.Len(t, seen, k, "exactly k attempts")
		assert.Equal(t, k, outcome.Tried())
		assert.Equal(t, cands[k-1], outcome.Candidate)
		assert.Len(t, outcome.Failed, k-1)
		assert.NoError(t, outcome.Err())
		require.Len(t, outcome.Results, 1)

		state, index := trial.State()
		assert.Equal(t, Succeeded, state)
		assert.Equal(t, k-1, index)
	}
}

func TestTrialExhausted(t *testing.T) {
	var seen []string
	outcome := NewTrial("10.0.0.1", candidates(3), acceptOnly("nobody", &seen), 0).Run(context.Background())

	assert.Equal(t, Exhausted, outcome.State)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, 3, outcome.Tried())
	assert.Empty(t, outcome.Results)
	assert.ErrorIs(t, outcome.Err(), errRejected)
}

func TestTrialWithoutCandidates(t *testing.T) {
	var seen []string
	trial := NewTrial("10.0.0.1", nil, acceptOnly("a", &seen), 0)

	state, _ := trial.State()
	assert.Equal(t, Pending, state)

	outcome := trial.Run(context.Background())
	assert.Equal(t, Exhausted, outcome.State)
	assert.Zero(t, outcome.Tried())
	assert.Empty(t, seen)
}

func TestTrialAttemptTimeout(t *testing.T) {
	var seen []string
	hang := func(ctx context.Context, base string, c credentials.Candidate) ([]onvif.StreamResult, error) {
		seen = append(seen, c.Username)
		if c.Username == "a" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []onvif.StreamResult{{ProfileName: "main"}}, nil
	}

	outcome := NewTrial("10.0.0.1", candidates(2), hang, 20*time.Millisecond).Run(context.Background())

	assert.Equal(t, Succeeded, outcome.State)
	assert.Equal(t, []string{"a", "b"}, seen)
	require.Len(t, outcome.Failed, 1)
	assert.ErrorIs(t, outcome.Failed[0].Err, context.DeadlineExceeded)
}

func TestTrialStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	cancelFirst := func(_ context.Context, _ string, c credentials.Candidate) ([]onvif.StreamResult, error) {
		seen = append(seen, c.Username)
		cancel()
		return nil, soap.ErrConnectivity
	}

	outcome := NewTrial("10.0.0.1", candidates(3), cancelFirst, 0).Run(ctx)

	assert.Equal(t, Exhausted, outcome.State)
	assert.Equal(t, []string{"a"}, seen)
}

func TestTrialTreatsEveryErrorCategoryAsNextCandidate(t *testing.T) {
	errs := []error{
		&onvif.AddressError{Address: "http://x", Base: "http://y"},
		&onvif.InconsistencyError{Advertised: "a", Expected: "b"},
		soap.ErrAuthentication,
		soap.ErrConnectivity,
		soap.ErrMalformedResponse,
		&soap.Fault{Subcode: "ter:ActionNotSupported"},
		onvif.ErrMediaUnavailable,
	}
	i := 0
	attempt := func(context.Context, string, credentials.Candidate) ([]onvif.StreamResult, error) {
		err := errs[i]
		i++
		return nil, err
	}

	outcome := NewTrial("10.0.0.1", candidates(len(errs)), attempt, 0).Run(context.Background())
	assert.Equal(t, Exhausted, outcome.State)
	assert.Equal(t, len(errs), outcome.Tried())
	assert.ErrorIs(t, outcome.Err(), onvif.ErrMediaUnavailable)
	assert.ErrorIs(t, outcome.Err(), onvif.ErrInconsistent)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "trying", Trying.String())
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "exhausted", Exhausted.String())
	assert.Equal(t, "State(9)", State(9).String())
}
