package onvif

import (
	"context"
	"fmt"

	"github.com/clbanning/mxj"

	"github.com/quocson95/onvif-inventory/soap"
)

// responseBody returns the named element of the SOAP body, or
// soap.ErrMalformedResponse when the device answered with something else.
func responseBody(m mxj.Map, element string) (mxj.Map, error) {
	bodies := soap.MapsAt(m, "Envelope.Body."+element)
	if len(bodies) == 0 {
		if _, err := m.ValueForPath("Envelope.Body." + element); err == nil {
			// Present but empty, e.g. <tds:GetServicesResponse/>.
			return mxj.Map{}, nil
		}
		return nil, fmt.Errorf("%w: no %s in response", soap.ErrMalformedResponse, element)
	}
	return bodies[0], nil
}

func getServices(ctx context.Context, c *soap.Client) ([]Service, error) {
	m, err := c.Call(ctx, DeviceNamespace+"/GetServices",
		`<tds:GetServices xmlns:tds="`+DeviceNamespace+`"><tds:IncludeCapability>false</tds:IncludeCapability></tds:GetServices>`)
	if err != nil {
		return nil, err
	}
	resp, err := responseBody(m, "GetServicesResponse")
	if err != nil {
		return nil, err
	}

	entries := soap.MapsAt(resp, "Service")
	services := make([]Service, 0, len(entries))
	for _, entry := range entries {
		service := Service{
			Namespace: soap.StringAt(entry, "Namespace"),
			XAddr:     soap.StringAt(entry, "XAddr"),
		}
		if major := soap.StringAt(entry, "Version.Major"); major != "" {
			service.Version = major + "." + soap.StringAt(entry, "Version.Minor")
		}
		services = append(services, service)
	}
	return services, nil
}

func getDeviceInformation(ctx context.Context, c *soap.Client) (DeviceInformation, error) {
	m, err := c.Call(ctx, DeviceNamespace+"/GetDeviceInformation",
		`<tds:GetDeviceInformation xmlns:tds="`+DeviceNamespace+`"/>`)
	if err != nil {
		return DeviceInformation{}, err
	}
	resp, err := responseBody(m, "GetDeviceInformationResponse")
	if err != nil {
		return DeviceInformation{}, err
	}

	return DeviceInformation{
		Manufacturer:    soap.StringAt(resp, "Manufacturer"),
		Model:           soap.StringAt(resp, "Model"),
		FirmwareVersion: soap.StringAt(resp, "FirmwareVersion"),
		SerialNumber:    soap.StringAt(resp, "SerialNumber"),
		HardwareID:      soap.StringAt(resp, "HardwareId"),
	}, nil
}
