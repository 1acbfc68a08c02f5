package drainer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// property #8: group status is a pure function of the member statuses.
func TestGroupDrainStatusIsPureFunction(t *testing.T) {
	members := []Member{
		{FSID: 1, Status: StatusDrained, Online: true},
		{FSID: 2, Status: StatusDrained, Online: true},
	}
	s1 := GroupDrainStatus(members)
	s2 := GroupDrainStatus(append([]Member(nil), members...))
	require.Equal(t, s1, s2)
	require.Equal(t, GroupDrainComplete, s1)
}

// scenario S5: {Drained/online, Drained/online, DrainFailed/online} reports
// DrainFailed; replacing the third with any/offline reports Off.
func TestScenarioS5GroupStatusDerivation(t *testing.T) {
	members := []Member{
		{FSID: 1, Status: StatusDrained, Online: true},
		{FSID: 2, Status: StatusDrained, Online: true},
		{FSID: 3, Status: StatusDrainFailed, Online: true},
	}
	require.Equal(t, GroupDrainFailed, GroupDrainStatus(members))

	members[2] = Member{FSID: 3, Status: StatusOn, Online: false}
	require.Equal(t, GroupOff, GroupDrainStatus(members))
}

func TestGroupDrainStatusOnAndDrainedIsOn(t *testing.T) {
	members := []Member{
		{FSID: 1, Status: StatusOn, Online: true},
		{FSID: 2, Status: StatusDrained, Online: true},
	}
	require.Equal(t, GroupOn, GroupDrainStatus(members))
}

func TestRetryTrackerExhaustsIntoFailedTransfers(t *testing.T) {
	rt := NewRetryTracker(10 * time.Millisecond)
	now := time.Now()
	const id = uint64(7)
	for i := 0; i < MaxRetries; i++ {
		require.True(t, rt.ReadyForAttempt(id, now))
		rt.RecordAttempt(id, now)
		now = now.Add(20 * time.Millisecond)
	}
	rt.RecordFailure(id, errors.New("transport down"))

	require.False(t, rt.ReadyForAttempt(id, now))
	failed := rt.FailedTransfers()
	require.Contains(t, failed, id)
}

func TestRetryTrackerRespectsBackoffWindow(t *testing.T) {
	rt := NewRetryTracker(100 * time.Millisecond)
	now := time.Now()
	rt.RecordAttempt(1, now)
	require.False(t, rt.ReadyForAttempt(1, now.Add(10*time.Millisecond)))
	require.True(t, rt.ReadyForAttempt(1, now.Add(200*time.Millisecond)))
}

func TestGroupDrainerRunOnceSubmitsUntrackedIDs(t *testing.T) {
	var transferred []uint64
	cfg := GroupConfig{
		DrainingFSIDs: []uint32{5},
		List: func(fsid uint32, limit int) ([]uint64, error) {
			return []uint64{100, 101, 102}, nil
		},
		Transfer: func(id uint64, fsid uint32) error {
			transferred = append(transferred, id)
			return nil
		},
		Backoff:     time.Second,
		InFlightCap: 10,
		BatchSize:   10,
	}
	g := NewGroupDrainer("grp1", cfg)
	require.NoError(t, g.RunOnce())
	require.ElementsMatch(t, []uint64{100, 101, 102}, transferred)

	sched, total := g.Progress().Snapshot(5)
	require.Equal(t, int64(3), sched)
	require.Equal(t, int64(3), total)
}

func TestGroupDrainerDoesNotRescheduleTrackedIDsWithinBackoff(t *testing.T) {
	calls := 0
	cfg := GroupConfig{
		DrainingFSIDs: []uint32{5},
		List: func(fsid uint32, limit int) ([]uint64, error) {
			return []uint64{1}, nil
		},
		Transfer: func(id uint64, fsid uint32) error {
			calls++
			return errors.New("fail")
		},
		Backoff:     time.Hour,
		InFlightCap: 10,
		BatchSize:   10,
	}
	g := NewGroupDrainer("grp2", cfg)
	require.NoError(t, g.RunOnce())
	require.NoError(t, g.RunOnce())
	require.Equal(t, 1, calls)
}
