package mqtt

import "fmt"

// TopicPrefixDevices is the base for all per-device topics.
const TopicPrefixDevices = "devices"

// Topic tails under devices/{token}/.
const (
	TopicConfig      = "config"
	TopicData        = "data"
	TopicDiagnostics = "diagnostics"
	TopicCommands    = "commands"
)

// Topics provides builders for the topics of one device.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Token: token}
//	dataTopic := topics.Data()
//	// Returns: "devices/{token}/data"
type Topics struct {
	Token string
}

// Device returns the topic for an arbitrary tail under the device root.
//
// Example: devices/3kDzXbEw4bGsn1oYhMi3bn8Pw/data
func (t Topics) Device(tail string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, t.Token, tail)
}

// Config returns the topic the variable configuration is published to.
func (t Topics) Config() string {
	return t.Device(TopicConfig)
}

// Data returns the topic variable values are published to.
func (t Topics) Data() string {
	return t.Device(TopicData)
}

// Diagnostics returns the topic diagnostics are published to.
func (t Topics) Diagnostics() string {
	return t.Device(TopicDiagnostics)
}

// Commands returns the topic remote commands arrive on.
func (t Topics) Commands() string {
	return t.Device(TopicCommands)
}

// All returns a pattern matching every topic of the device.
//
// Pattern: devices/{token}/#
func (t Topics) All() string {
	return fmt.Sprintf("%s/%s/#", TopicPrefixDevices, t.Token)
}
