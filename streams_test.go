package onvif

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/onvif-inventory/internal/onviftest"
	"github.com/quocson95/onvif-inventory/soap"
)

func TestGetStreamURIs(t *testing.T) {
	device := &onviftest.Device{Profiles: twoProfiles()}
	base := device.Start(t)

	s, err := NewSession(context.Background(), base, nil)
	require.NoError(t, err)
	results, err := GetStreamURIs(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, results, 2)

	host := base[len("http://"):]
	assert.Equal(t, "mainStream\trtsp://"+host+"/prof0\t1920x1080\t25", results[0].String())
	assert.Equal(t, "subStream\trtsp://"+host+"/prof1\t640x360", results[1].String())
	assert.Equal(t, "prof1", results[1].ProfileToken)
	assert.Nil(t, results[1].FrameRate)
}

func TestGetStreamURIsKeepsProfileOrder(t *testing.T) {
	device := &onviftest.Device{Profiles: []onviftest.Profile{
		{Token: "a", Name: "A", Delay: 300 * time.Millisecond},
		{Token: "b", Name: "B", Delay: 150 * time.Millisecond},
		{Token: "c", Name: "C", Delay: 50 * time.Millisecond},
	}}
	base := device.Start(t)

	s, err := NewSession(context.Background(), base, nil)
	require.NoError(t, err)
	results, err := GetStreamURIs(context.Background(), s)
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		names = append(names, r.ProfileName)
		assert.Nil(t, r.Resolution)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
	assert.Equal(t, 3, device.PeakStreamRequests(), "requests are sent concurrently")
}

func TestGetStreamURIsFailsWholeBatch(t *testing.T) {
	device := &onviftest.Device{Profiles: []onviftest.Profile{
		{Token: "a", Name: "A"},
		{Token: "b", Name: "B", Fail: true},
		{Token: "c", Name: "C", Delay: 50 * time.Millisecond},
	}}
	base := device.Start(t)

	s, err := NewSession(context.Background(), base, nil)
	require.NoError(t, err)
	results, err := GetStreamURIs(context.Background(), s)
	require.Error(t, err)
	assert.Empty(t, results)

	var fault *soap.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "stream unavailable", fault.Reason)
}

func TestGetStreamURIsWithoutMedia(t *testing.T) {
	device := &onviftest.Device{Services: []onviftest.Service{
		{Namespace: DeviceNamespace, XAddr: onviftest.Base + "/onvif/device_service"},
	}}
	base := device.Start(t)

	s, err := NewSession(context.Background(), base, nil)
	require.NoError(t, err)
	assert.False(t, s.HasMedia())

	_, err = GetStreamURIs(context.Background(), s)
	assert.ErrorIs(t, err, ErrMediaUnavailable)
	for _, transportErr := range []error{soap.ErrAuthentication, soap.ErrConnectivity, soap.ErrMalformedResponse} {
		assert.False(t, errors.Is(err, transportErr))
	}
	assert.Zero(t, device.Count("GetProfiles"))
}

func TestGetStreamURIsNoProfiles(t *testing.T) {
	device := &onviftest.Device{}
	base := device.Start(t)

	s, err := NewSession(context.Background(), base, nil)
	require.NoError(t, err)
	results, err := GetStreamURIs(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, results)
}
