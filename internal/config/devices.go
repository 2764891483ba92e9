package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// WinWing hardware defaults.
const (
	DefaultVendorID   = 0x4098
	DefaultReportSize = 14
	// DefaultValueOffset is the position of the value byte in a WinWing report.
	DefaultValueOffset = 8
)

// DeviceSpec describes one physical device and its report framing.
type DeviceSpec struct {
	ID        core.DeviceID `json:"id" mapstructure:"id"`
	Name      string        `json:"name" mapstructure:"name"`
	VendorID  uint16        `json:"vendorId" mapstructure:"vendorId"`
	ProductID uint16        `json:"productId" mapstructure:"productId"`
	// LedPrefix and MotorPrefix are hex strings, e.g. "0205BF".
	LedPrefix   string `json:"ledPrefix" mapstructure:"ledPrefix"`
	MotorPrefix string `json:"motorPrefix" mapstructure:"motorPrefix"`
}

// String renders the identifier used in errors, e.g. "pto2 (4098:BF05)".
func (d DeviceSpec) String() string {
	return fmt.Sprintf("%s (%04X:%04X)", d.ID, d.VendorID, d.ProductID)
}

// Prefix returns the decoded report prefix for the given output kind.
func (d DeviceSpec) Prefix(kind core.OutputKind) ([]byte, error) {
	s := d.LedPrefix
	if kind == core.OutputMotor {
		s = d.MotorPrefix
	}
	if s == "" {
		return nil, fmt.Errorf("device %s has no %s prefix", d.ID, kind)
	}
	return hex.DecodeString(strings.ReplaceAll(s, " ", ""))
}

// DeviceConfig holds the device table and the output bindings. WriteTimeout
// bounds a single report write.
type DeviceConfig struct {
	Devices      []DeviceSpec
	Bindings     []core.DeviceBinding
	ReportSize   int
	WriteTimeout time.Duration
}

// DefaultDevices returns the WinWing Orion 2 set.
func DefaultDevices() []DeviceSpec {
	return []DeviceSpec{
		{ID: core.DevicePTO2, Name: "WinWing PTO2", VendorID: DefaultVendorID, ProductID: 0xBF05, LedPrefix: "0205BF"},
		{ID: core.DeviceThrottle, Name: "WinWing Orion 2 Throttle", VendorID: DefaultVendorID, ProductID: 0xBD64, LedPrefix: "0260BE", MotorPrefix: "0201BF"},
		{ID: core.DeviceJoystick, Name: "WinWing Orion 2 Joystick", VendorID: DefaultVendorID, ProductID: 0xBEA8, MotorPrefix: "020100"},
	}
}

func bit(device core.DeviceID, name string, cmd byte) core.DeviceBinding {
	return core.DeviceBinding{Name: name, Device: device, Kind: core.OutputBit, Command: cmd, ByteOffset: DefaultValueOffset}
}

func brightness(device core.DeviceID, name, source string, cmd byte, minimum, def float64) core.DeviceBinding {
	return core.DeviceBinding{
		Name: name, Source: source, Device: device, Kind: core.OutputBrightness, Command: cmd,
		ByteOffset: DefaultValueOffset, Scale: 1, Minimum: minimum, Default: def,
	}
}

// DefaultBindings returns the outputs of the WinWing Orion 2 set.
func DefaultBindings() []core.DeviceBinding {
	pto2, thr, joy := core.DevicePTO2, core.DeviceThrottle, core.DeviceJoystick

	gearHandle := brightness(pto2, "GEAR_HANDLE", "", 0x01, 0, 0)
	gearHandle.Switched = true

	return []core.DeviceBinding{
		brightness(pto2, "BACKLIGHT", "CONSOLES_BRIGHTNESS", 0x00, 3.0/255, 0.5),
		gearHandle,
		brightness(pto2, "SL_BRIGHTNESS", "", 0x02, 0, 1),
		brightness(pto2, "FLAG_BRIGHTNESS", "", 0x03, 0, 1),
		bit(pto2, "MASTER_CAUTION", 0x04),
		bit(pto2, "JETTISON", 0x05),
		bit(pto2, "STATION_CTR", 0x06),
		bit(pto2, "STATION_LI", 0x07),
		bit(pto2, "STATION_LO", 0x08),
		bit(pto2, "STATION_RO", 0x09),
		bit(pto2, "STATION_RI", 0x0A),
		bit(pto2, "FLAPS_YELLOW", 0x0B),
		bit(pto2, "NOSE_GEAR", 0x0C),
		bit(pto2, "FULL_FLAPS", 0x0D),
		bit(pto2, "RIGHT_GEAR", 0x0E),
		bit(pto2, "LEFT_GEAR", 0x0F),
		bit(pto2, "HALF_FLAPS", 0x10),
		bit(pto2, "HOOK", 0x11),

		brightness(thr, "BACKLIGHT", "CONSOLES_BRIGHTNESS", 0x00, 13.0/255, 0.5),
		bit(thr, "MASTER_MODE_AA", 0x01),
		bit(thr, "MASTER_MODE_AG", 0x02),

		{Name: core.MotorThrottle, Device: thr, Kind: core.OutputMotor, Command: 0x00, ByteOffset: DefaultValueOffset, Scale: 1.0},
		{Name: core.MotorJoystick, Device: joy, Kind: core.OutputMotor, Command: 0x00, ByteOffset: DefaultValueOffset, Scale: 1.4},
	}
}

// GetDeviceConfig returns the device table and bindings, falling back to the defaults.
func GetDeviceConfig() (DeviceConfig, error) {
	cfg := DeviceConfig{
		Devices:      DefaultDevices(),
		Bindings:     DefaultBindings(),
		ReportSize:   viper.GetInt("device.reportSize"),
		WriteTimeout: viper.GetDuration("device.writeTimeout"),
	}

	if viper.IsSet("device.devices") {
		cfg.Devices = nil
		if err := viper.UnmarshalKey("device.devices", &cfg.Devices); err != nil {
			return cfg, fmt.Errorf("error decoding device.devices: %w", err)
		}
	}
	if viper.IsSet("device.bindings") {
		cfg.Bindings = nil
		if err := viper.UnmarshalKey("device.bindings", &cfg.Bindings); err != nil {
			return cfg, fmt.Errorf("error decoding device.bindings: %w", err)
		}
	}

	known := make(map[core.DeviceID]bool, len(cfg.Devices))
	for _, d := range cfg.Devices {
		known[d.ID] = true
	}
	for _, b := range cfg.Bindings {
		if !known[b.Device] {
			return cfg, fmt.Errorf("binding %q references unknown device %q", b.Name, b.Device)
		}
		if b.ByteOffset >= cfg.ReportSize {
			return cfg, fmt.Errorf("binding %q byte offset %d outside %d byte report", b.Name, b.ByteOffset, cfg.ReportSize)
		}
	}

	return cfg, nil
}

// DefaultWeaponWeights maps store CLSIDs to unit weight in kg.
func DefaultWeaponWeights() map[string]float64 {
	return map[string]float64{
		// air to air
		"{6CEB49FC-DED8-4DED-B053-E1F033FF72D3}": 86,  // AIM-9M
		"{5CE2FF2A-645A-4197-B48D-8720AC69394F}": 84,  // AIM-9X
		"{8D399DDA-FF81-4F14-904D-099B34FE7918}": 231, // AIM-7M
		"{AIM-7F}":                               231,
		"{AIM-7H}":                               231,
		"{C8E06185-7CD6-4C90-959F-044679E90751}": 158, // AIM-120B
		"{40EF17B7-F508-45de-8566-6FFECC0C1AB8}": 161, // AIM-120C

		// air to ground missiles
		"{F16A4DE0-116C-4A71-97F0-2CF85B0313EF}": 286, // AGM-65E
		"{B06DD79A-F21E-4EB9-BD9D-AB3844618C9C}": 361, // AGM-88C
		"{AGM_84D}":                              540,
		"{AGM_84H}":                              675,
		"{AGM-154A}":                             485,
		"{9BCC2A2B-5708-4860-B1F1-053A18442067}": 484, // AGM-154C

		// bombs
		"{BCE4E030-38E9-423E-98ED-24BE3DA87C32}": 232, // Mk-82
		"{Mk-83}":                                454,
		"{AB8B8299-F1CC-4571-9571-6C22BCA83BFF}": 894,  // Mk-84
		"{51F9AAE5-964F-4D21-83FB-502E3BFE5F8A}": 1162, // GBU-10
		"{DB769D48-67D7-42ED-A2BE-108D566C8B1E}": 275,  // GBU-12
		"{0D33DDAE-524F-4A4E-B5B8-621754FE3ADE}": 564,  // GBU-16
		"{GBU-31}":                               934,
		"{GBU-31V3B}":                            934,
		"{GBU-38}":                               253,
		"{CBU-87}":                               430,
		"{5335D97A-35A5-4643-9D9B-026C75961E52}": 417, // CBU-97
		"{CBU_99}":                               222,

		// tanks
		"{FPU_8A_FUEL_TANK}":                     520,
		"{E8D4652F-FD48-45B7-BA5B-2AE05BB5A9CF}": 525, // PTB-800
	}
}

// GetWeaponWeights returns the default table overlaid with weapons.weights from the config file.
// Keys are lower case since viper folds map keys.
func GetWeaponWeights() map[string]float64 {
	weights := make(map[string]float64)
	for clsid, kg := range DefaultWeaponWeights() {
		weights[strings.ToLower(clsid)] = kg
	}
	for clsid, kg := range viper.GetStringMap("weapons.weights") {
		clsid = strings.ToLower(clsid)
		switch v := kg.(type) {
		case float64:
			weights[clsid] = v
		case int:
			weights[clsid] = float64(v)
		}
	}
	return weights
}
