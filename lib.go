package onvif

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quocson95/onvif-inventory/discovery"
	"github.com/quocson95/onvif-inventory/soap"
)

// OnvifData is the JSON envelope returned by the string API below, for
// callers binding this package from other languages.
type OnvifData struct {
	Error string
	Data  interface{}
}

func marshalResult(data interface{}, err error) string {
	result := OnvifData{Data: data}
	if err != nil {
		result.Error = err.Error()
	}
	str, _ := json.Marshal(result)
	return string(str)
}

func credentialsFor(username, password string) *soap.Credentials {
	if username == "" && password == "" {
		return nil
	}
	return &soap.Credentials{Username: username, Password: password}
}

type discoveredDevice struct {
	Name       string
	Address    string
	EndpointID string
	Hardware   string
	XAddrs     []string
}

// DiscoveryDevice probes for duration milliseconds on interfaceName, all
// interfaces when empty, and returns the devices as JSON.
func DiscoveryDevice(interfaceName string, duration int) string {
	stream, err := discovery.Discover(context.Background(), discovery.Options{
		Duration:  time.Duration(duration) * time.Millisecond,
		Interface: interfaceName,
	})
	if err != nil {
		return marshalResult(nil, err)
	}

	devices := []discoveredDevice{}
	for d := range stream.Devices() {
		devices = append(devices, discoveredDevice{
			Name:       d.Name,
			Address:    d.BaseAddress(),
			EndpointID: d.EndpointID,
			Hardware:   d.Hardware,
			XAddrs:     d.XAddrs,
		})
	}
	return marshalResult(devices, stream.Err())
}

// DeviceInformationJSON opens a session on host and returns its device
// information as JSON. Empty username and password connect anonymously.
func DeviceInformationJSON(host, username, password string) string {
	if username == "" && password != "" {
		return marshalResult(nil, errPasswordWithoutUser)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*soap.DefaultTimeout)
	defer cancel()

	session, err := NewSession(ctx, host, credentialsFor(username, password))
	if err != nil {
		return marshalResult(nil, err)
	}
	info, err := session.DeviceInformation(ctx)
	if err != nil {
		return marshalResult(nil, err)
	}
	return marshalResult(info, nil)
}

// StreamURIsJSON opens a session on host and returns the stream URI of every
// media profile as JSON.
func StreamURIsJSON(host, username, password string) string {
	if username == "" && password != "" {
		return marshalResult(nil, errPasswordWithoutUser)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*soap.DefaultTimeout)
	defer cancel()

	session, err := NewSession(ctx, host, credentialsFor(username, password))
	if err != nil {
		return marshalResult(nil, err)
	}
	results, err := GetStreamURIs(ctx, session)
	if err != nil {
		return marshalResult(nil, err)
	}
	return marshalResult(results, nil)
}
