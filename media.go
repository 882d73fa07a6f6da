package onvif

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/clbanning/mxj"

	"github.com/quocson95/onvif-inventory/soap"
)

func getProfiles(ctx context.Context, c *soap.Client) ([]MediaProfile, error) {
	m, err := c.Call(ctx, MediaNamespace+"/GetProfiles",
		`<trt:GetProfiles xmlns:trt="`+MediaNamespace+`"/>`)
	if err != nil {
		return nil, err
	}
	resp, err := responseBody(m, "GetProfilesResponse")
	if err != nil {
		return nil, err
	}

	entries := soap.MapsAt(resp, "Profiles")
	profiles := make([]MediaProfile, 0, len(entries))
	for i, entry := range entries {
		profile, err := parseProfile(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: profile %d: %w", soap.ErrMalformedResponse, i, err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func parseProfile(entry mxj.Map) (MediaProfile, error) {
	profile := MediaProfile{
		Token: soap.Attr(entry, "token"),
		Name:  soap.StringAt(entry, "Name"),
	}
	if profile.Token == "" {
		return MediaProfile{}, errors.New("missing token")
	}

	encoders := soap.MapsAt(entry, "VideoEncoderConfiguration")
	if len(encoders) == 0 {
		return profile, nil
	}
	encoder := encoders[0]

	width, err := intAt(encoder, "Resolution.Width")
	if err != nil {
		return MediaProfile{}, err
	}
	height, err := intAt(encoder, "Resolution.Height")
	if err != nil {
		return MediaProfile{}, err
	}
	ve := &VideoEncoderConfiguration{
		Token:      soap.Attr(encoder, "token"),
		Name:       soap.StringAt(encoder, "Name"),
		Encoding:   soap.StringAt(encoder, "Encoding"),
		Resolution: Resolution{Width: width, Height: height},
	}
	if soap.StringAt(encoder, "RateControl.FrameRateLimit") != "" {
		fps, err := intAt(encoder, "RateControl.FrameRateLimit")
		if err != nil {
			return MediaProfile{}, err
		}
		ve.FrameRateLimit = &fps
	}
	profile.VideoEncoder = ve
	return profile, nil
}

func intAt(m mxj.Map, path string) (int, error) {
	s := soap.StringAt(m, path)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", path, s)
	}
	return n, nil
}

// getStreamURI asks for the RTP unicast over RTSP URI of a profile.
func getStreamURI(ctx context.Context, c *soap.Client, profileToken string) (string, error) {
	var body strings.Builder
	body.WriteString(`<trt:GetStreamUri xmlns:trt="` + MediaNamespace + `" xmlns:tt="` + SchemaNamespace + `">`)
	body.WriteString(`<trt:StreamSetup><tt:Stream>RTP-Unicast</tt:Stream>`)
	body.WriteString(`<tt:Transport><tt:Protocol>RTSP</tt:Protocol></tt:Transport></trt:StreamSetup>`)
	body.WriteString(`<trt:ProfileToken>`)
	xml.EscapeText(&body, []byte(profileToken))
	body.WriteString(`</trt:ProfileToken></trt:GetStreamUri>`)

	m, err := c.Call(ctx, MediaNamespace+"/GetStreamUri", body.String())
	if err != nil {
		return "", err
	}
	resp, err := responseBody(m, "GetStreamUriResponse")
	if err != nil {
		return "", err
	}
	uri := soap.StringAt(resp, "MediaUri.Uri")
	if uri == "" {
		return "", fmt.Errorf("%w: empty stream uri for profile %s", soap.ErrMalformedResponse, profileToken)
	}
	return uri, nil
}
