package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/Tenemo/bob/internal/errors"
)

// DeviceInfo describes a playback device
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault"`
}

// ListDevices returns the available playback devices
func ListDevices() ([]DeviceInfo, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, c := range toCandidates(infos) {
		if strings.Contains(c.name, "Discard all samples") {
			continue
		}
		devices = append(devices, DeviceInfo{Index: i, Name: c.name, ID: c.id, IsDefault: c.isDefault})
	}
	return devices, nil
}

// SelectDevice finds a device matching the given name or ID
func SelectDevice(devices []malgo.DeviceInfo, deviceName string) (*malgo.DeviceInfo, error) {
	idx, ok := pickDevice(toCandidates(devices), deviceName)
	if !ok {
		return nil, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryNotFound).
			Context("device_name", deviceName).
			Context("available_devices", len(devices)).
			Context("error", "no matching audio device found").
			Build()
	}
	return &devices[idx], nil
}

// candidate is the matchable part of a malgo.DeviceInfo
type candidate struct {
	name      string
	id        string // decoded device ID
	isDefault bool
}

func toCandidates(infos []malgo.DeviceInfo) []candidate {
	cands := make([]candidate, len(infos))
	for i := range infos {
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		cands[i] = candidate{name: infos[i].Name(), id: id, isDefault: infos[i].IsDefault == 1}
	}
	return cands
}

// pickDevice prefers the default device, then exact name, decoded ID and partial name matches
func pickDevice(cands []candidate, want string) (int, bool) {
	if want == "" || want == "default" || want == "sysdefault" {
		for i := range cands {
			if cands[i].isDefault {
				return i, true
			}
		}
		return 0, len(cands) > 0
	}
	for i := range cands {
		if cands[i].name == want {
			return i, true
		}
	}
	for i := range cands {
		if cands[i].id == want {
			return i, true
		}
	}
	for i := range cands {
		if strings.Contains(cands[i].name, want) {
			return i, true
		}
	}
	return 0, false
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
