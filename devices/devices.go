// Package devices enumerates the audio devices PortAudio exposes and wraps
// them in filterable value types. Callers must have PortAudio initialized
// before enumerating (the engine and CLI own that lifecycle).
package devices

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// AudioDevice describes one PortAudio device.
type AudioDevice struct {
	Name              string  `json:"name"`
	HostAPI           string  `json:"hostAPI"`
	MaxInputChannels  int     `json:"maxInputChannels"`
	MaxOutputChannels int     `json:"maxOutputChannels"`
	DefaultSampleRate float64 `json:"defaultSampleRate"`
	IsDefaultInput    bool    `json:"isDefaultInput"`
	IsDefaultOutput   bool    `json:"isDefaultOutput"`

	info *portaudio.DeviceInfo
}

// CanInput reports whether the device can capture audio.
func (a AudioDevice) CanInput() bool {
	return a.MaxInputChannels > 0
}

// CanOutput reports whether the device can play audio.
func (a AudioDevice) CanOutput() bool {
	return a.MaxOutputChannels > 0
}

// IsInputOutput reports whether the device is full duplex on its own.
func (a AudioDevice) IsInputOutput() bool {
	return a.CanInput() && a.CanOutput()
}

// Info returns the underlying PortAudio device info for stream opening.
func (a AudioDevice) Info() *portaudio.DeviceInfo {
	return a.info
}

// AudioDevices is a slice of AudioDevice with filter methods.
type AudioDevices []AudioDevice

// Inputs returns only devices that can capture audio.
func (devices AudioDevices) Inputs() AudioDevices {
	var result AudioDevices
	for _, d := range devices {
		if d.CanInput() {
			result = append(result, d)
		}
	}
	return result
}

// Outputs returns only devices that can play audio.
func (devices AudioDevices) Outputs() AudioDevices {
	var result AudioDevices
	for _, d := range devices {
		if d.CanOutput() {
			result = append(result, d)
		}
	}
	return result
}

// ByName returns the first device with the given name, or nil.
func (devices AudioDevices) ByName(name string) *AudioDevice {
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	return nil
}

// ByHostAPI returns only devices exposed through the named host API.
func (devices AudioDevices) ByHostAPI(api string) AudioDevices {
	var result AudioDevices
	for _, d := range devices {
		if d.HostAPI == api {
			result = append(result, d)
		}
	}
	return result
}

// DefaultOutput returns the system default output device, or nil when the
// enumeration contains none.
func (devices AudioDevices) DefaultOutput() *AudioDevice {
	for i := range devices {
		if devices[i].IsDefaultOutput {
			return &devices[i]
		}
	}
	return nil
}

// DefaultInput returns the system default input device, or nil.
func (devices AudioDevices) DefaultInput() *AudioDevice {
	for i := range devices {
		if devices[i].IsDefaultInput {
			return &devices[i]
		}
	}
	return nil
}

// GetAudio enumerates all audio devices.
func GetAudio() (AudioDevices, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	result := make(AudioDevices, 0, len(infos))
	for _, info := range infos {
		d := AudioDevice{
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    info == defaultIn,
			IsDefaultOutput:   info == defaultOut,
			info:              info,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		result = append(result, d)
	}
	return result, nil
}
