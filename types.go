// Package onvif opens sessions to ONVIF devices and lists the media stream
// URIs they serve.
package onvif

import (
	"fmt"
	"strings"
)

const (
	// DeviceNamespace is the device management service namespace.
	DeviceNamespace = "http://www.onvif.org/ver10/device/wsdl"
	// MediaNamespace is the media service namespace.
	MediaNamespace = "http://www.onvif.org/ver10/media/wsdl"
	// SchemaNamespace is the common ONVIF schema namespace.
	SchemaNamespace = "http://www.onvif.org/ver10/schema"

	// ManagementPath is where every device serves device management.
	ManagementPath = "/onvif/device_service"
)

// Service is one entry of a GetServices response.
type Service struct {
	Namespace string
	XAddr     string
	Version   string
}

// DeviceInformation is the GetDeviceInformation response.
type DeviceInformation struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
}

type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

type VideoEncoderConfiguration struct {
	Token      string
	Name       string
	Encoding   string
	Resolution Resolution
	// FrameRateLimit is nil when the profile has no rate control.
	FrameRateLimit *int
}

// MediaProfile is a profile returned by GetProfiles.
type MediaProfile struct {
	Token        string
	Name         string
	VideoEncoder *VideoEncoderConfiguration
}

// StreamResult is the RTSP URI of one media profile.
type StreamResult struct {
	ProfileName  string
	ProfileToken string
	URI          string
	Resolution   *Resolution
	FrameRate    *int
}

func newStreamResult(profile MediaProfile, uri string) StreamResult {
	result := StreamResult{
		ProfileName:  profile.Name,
		ProfileToken: profile.Token,
		URI:          uri,
	}
	if ve := profile.VideoEncoder; ve != nil {
		resolution := ve.Resolution
		result.Resolution = &resolution
		if ve.FrameRateLimit != nil {
			rate := *ve.FrameRateLimit
			result.FrameRate = &rate
		}
	}
	return result
}

// String formats the result as a tab separated line without a newline:
// name, URI and, when known, WxH followed by the frame rate.
func (r StreamResult) String() string {
	fields := []string{r.ProfileName, r.URI}
	if r.Resolution != nil {
		fields = append(fields, r.Resolution.String())
		if r.FrameRate != nil {
			fields = append(fields, fmt.Sprint(*r.FrameRate))
		}
	}
	return strings.Join(fields, "\t")
}
