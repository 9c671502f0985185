package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/pkorhonen/ilmaris/internal/fmi"
	"github.com/pkorhonen/ilmaris/internal/weather"
)

type fakeFetcher struct {
	result *fmi.ObservationResult
	err    error
}

func (f *fakeFetcher) FetchObservations(ctx context.Context) (*fmi.ObservationResult, error) {
	return f.result, f.err
}

type fakeStore struct {
	stationCalls     int
	observationCalls int
	stationErr       error
}

func (s *fakeStore) UpsertStations(ctx context.Context, stations []weather.Station) error {
	s.stationCalls++
	return s.stationErr
}

func (s *fakeStore) UpsertObservations(ctx context.Context, observations []weather.Observation) error {
	s.observationCalls++
	return nil
}

func newTestScheduler(f ObservationFetcher, st ObservationStore) *Scheduler {
	return New(f, st, 10*time.Minute, time.Minute, zap.NewNop().Sugar())
}

func TestRunCyclePersistsResult(t *testing.T) {
	temp := -5.2
	st := &fakeStore{}
	s := newTestScheduler(&fakeFetcher{result: &fmi.ObservationResult{
		Stations: []weather.Station{{FMISID: 100971, Name: "Helsinki Kaisaniemi"}},
		Observations: []weather.Observation{
			{FMISID: 100971, ObservedAt: time.Now(), Temperature: &temp},
		},
	}}, st)

	s.RunCycle()

	assert.Equal(t, 1, st.stationCalls)
	assert.Equal(t, 1, st.observationCalls)
}

func TestRunCycleSkipsEmptyResult(t *testing.T) {
	st := &fakeStore{}
	s := newTestScheduler(&fakeFetcher{result: &fmi.ObservationResult{}}, st)

	s.RunCycle()

	assert.Zero(t, st.stationCalls)
	assert.Zero(t, st.observationCalls)
}

func TestRunCycleAbsorbsFetchError(t *testing.T) {
	st := &fakeStore{}
	s := newTestScheduler(&fakeFetcher{err: errors.New("upstream 503")}, st)

	s.RunCycle()

	assert.Zero(t, st.stationCalls)
	assert.Zero(t, st.observationCalls)
}

func TestRunCycleStopsAfterStationUpsertFailure(t *testing.T) {
	st := &fakeStore{stationErr: errors.New("db down")}
	s := newTestScheduler(&fakeFetcher{result: &fmi.ObservationResult{
		Stations: []weather.Station{{FMISID: 100971}},
	}}, st)

	s.RunCycle()

	assert.Equal(t, 1, st.stationCalls)
	assert.Zero(t, st.observationCalls)
}
