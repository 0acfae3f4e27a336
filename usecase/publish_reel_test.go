package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/usecase"
	"github.com/vitovidale/autosplit-service/usecase/mocks"
)

func newTestPublisher(api *mocks.ReelAPI, maxAttempts int) (*usecase.ReelPublisher, *[]time.Duration) {
	var slept []time.Duration
	p := usecase.NewReelPublisher(api, "https://autosplit.example/", maxAttempts, time.Second, zap.NewNop())
	p.MaxBackoff = 3 * time.Second
	p.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

var publishAccount = domain.Account{ID: "user-1", AccessToken: "ig-token"}

func TestReelPublisher_PollsUntilFinished(t *testing.T) {
	api := new(mocks.ReelAPI)
	job := &domain.VideoJob{ID: "job-1", Caption: "gg"}
	api.On("CreateReelContainer", mock.Anything, "ig-token", "https://autosplit.example/outputs/job-1", "gg").
		Return("container-1", nil).Once()
	api.On("ContainerStatus", mock.Anything, "ig-token", "container-1").Return(usecase.ContainerInProgress, nil).Times(3)
	api.On("ContainerStatus", mock.Anything, "ig-token", "container-1").Return(usecase.ContainerFinished, nil).Once()
	api.On("PublishContainer", mock.Anything, "ig-token", "container-1").Return("media-1", nil).Once()

	p, slept := newTestPublisher(api, 10)
	mediaID, err := p.Publish(context.Background(), publishAccount, job)
	require.NoError(t, err)
	assert.Equal(t, "media-1", mediaID)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *slept)
	api.AssertExpectations(t)
}

func TestReelPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	api := new(mocks.ReelAPI)
	api.On("CreateReelContainer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("container-1", nil).Once()
	api.On("ContainerStatus", mock.Anything, "ig-token", "container-1").Return(usecase.ContainerInProgress, nil).Times(3)

	p, slept := newTestPublisher(api, 3)
	_, err := p.Publish(context.Background(), publishAccount, &domain.VideoJob{ID: "job-1"})
	assert.ErrorIs(t, err, domain.ErrPublishTimeout)
	assert.Len(t, *slept, 2)
	api.AssertNotCalled(t, "PublishContainer", mock.Anything, mock.Anything, mock.Anything)
	api.AssertExpectations(t)
}

func TestReelPublisher_ContainerErrorStopsPolling(t *testing.T) {
	api := new(mocks.ReelAPI)
	api.On("CreateReelContainer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("container-1", nil).Once()
	api.On("ContainerStatus", mock.Anything, "ig-token", "container-1").Return(usecase.ContainerError, nil).Once()

	p, slept := newTestPublisher(api, 5)
	_, err := p.Publish(context.Background(), publishAccount, &domain.VideoJob{ID: "job-1"})
	assert.ErrorContains(t, err, "ERROR")
	assert.NotErrorIs(t, err, domain.ErrPublishTimeout)
	assert.Empty(t, *slept)
}
