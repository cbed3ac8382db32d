package avatar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Avatar/internal/core/mocks"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func cand(data string) domain.Candidate {
	return domain.Candidate{Data: data, MediaLineID: "0"}
}

func TestCandidateRelay_BuffersUntilArmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockStreamingAPI(ctrl)

	var (
		mu   sync.Mutex
		sent []string
	)
	api.EXPECT().RelayCandidate(gomock.Any(), "T", "S", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, c domain.Candidate) error {
			mu.Lock()
			sent = append(sent, c.Data)
			mu.Unlock()
			return nil
		}).Times(4)

	r := NewCandidateRelay(context.Background(), api, "T", "S")
	defer r.Stop()

	r.Enqueue(cand("c1"))
	r.Enqueue(cand("c2"))
	r.Enqueue(cand("c3"))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, sent, "nothing may be relayed before Arm")
	mu.Unlock()

	r.Arm()
	r.Enqueue(cand("c4"))

	require.Eventually(t, func() bool { return r.Sent() == 4 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, sent)
}

func TestCandidateRelay_FailureDoesNotStopLaterCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockStreamingAPI(ctrl)
	gomock.InOrder(
		api.EXPECT().RelayCandidate(gomock.Any(), "T", "S", cand("c1")).Return(&remoteErr{msg: "unknown session"}),
		api.EXPECT().RelayCandidate(gomock.Any(), "T", "S", cand("c2")).Return(errors.New("connection reset")),
		api.EXPECT().RelayCandidate(gomock.Any(), "T", "S", cand("c3")).Return(nil),
	)

	r := NewCandidateRelay(context.Background(), api, "T", "S")
	defer r.Stop()
	r.Arm()
	for _, c := range []string{"c1", "c2", "c3"} {
		r.Enqueue(cand(c))
	}

	require.Eventually(t, func() bool { return r.Sent() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), r.failed.Load())
}

func TestCandidateRelay_StopDropsPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockStreamingAPI(ctrl)

	r := NewCandidateRelay(context.Background(), api, "T", "S")
	r.Enqueue(cand("c1"))
	r.Stop()
	r.Stop()

	r.Arm()
	r.Enqueue(cand("c2"))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, r.Sent())
}

func TestCandidateRelay_StopsWithParentContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockStreamingAPI(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewCandidateRelay(ctx, api, "T", "S")
	cancel()

	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}
	r.Stop()
}
