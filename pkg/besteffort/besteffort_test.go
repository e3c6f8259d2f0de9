package besteffort

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type recorderMock struct {
	mock.Mock
}

func (m *recorderMock) RecordBestEffortFailure(ctx context.Context, operation string) {
	m.Called(operation)
}

func TestRunReturnsValue(t *testing.T) {
	rec := &recorderMock{}
	res := Run(context.Background(), zap.NewNop(), rec, "realtime.publish", func(context.Context) (int, error) {
		return 7, nil
	})

	assert.True(t, res.OK())
	assert.Equal(t, 7, res.Value)
	rec.AssertNotCalled(t, "RecordBestEffortFailure", mock.Anything)
}

func TestRunSwallowsErrorAndCounts(t *testing.T) {
	rec := &recorderMock{}
	rec.On("RecordBestEffortFailure", "webhook.dispatch").Once()

	res := Do(context.Background(), zap.NewNop(), rec, "webhook.dispatch", func(context.Context) error {
		return errors.New("boom")
	})

	assert.False(t, res.OK())
	assert.EqualError(t, res.Err, "boom")
	rec.AssertExpectations(t)
}

func TestRunRecoversPanic(t *testing.T) {
	rec := &recorderMock{}
	rec.On("RecordBestEffortFailure", "notification.create").Once()

	res := Do(context.Background(), nil, rec, "notification.create", func(context.Context) error {
		panic("nil map")
	})

	assert.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "nil map")
	rec.AssertExpectations(t)
}
