// Package sysinfo reads host facts used as device diagnostics.
package sysinfo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
)

// Source names accepted by Reader.
const (
	SourceHostname       = "hostname"
	SourceIPAddress      = "ip_address"
	SourceOSName         = "os_name"
	SourceUptime         = "uptime"
	SourceCPUTemperature = "cpu_temperature"
)

// probeAddr is only used to pick the outbound interface. No packet is sent.
const probeAddr = "8.8.8.8:80"

// ErrUnknownSource is returned by Reader for an unsupported source name.
var ErrUnknownSource = errors.New("sysinfo: unknown source")

// Collector reads host facts for diagnostics.
//
// Hostname and IP address are cached after the first successful read.
type Collector struct {
	hostname   func() (string, error)
	dial       func(network, address string) (net.Conn, error)
	osRelease  string
	procUptime string
	thermal    string
	start      time.Time

	mu   sync.Mutex
	host string
	ip   string
}

// New returns a Collector reading the standard Linux locations.
func New() *Collector {
	return &Collector{
		hostname:   os.Hostname,
		dial:       net.Dial,
		osRelease:  "/etc/os-release",
		procUptime: "/proc/uptime",
		thermal:    "/sys/class/thermal/thermal_zone0/temp",
		start:      time.Now(),
	}
}

// Sources lists the supported source names.
func Sources() []string {
	s := []string{SourceHostname, SourceIPAddress, SourceOSName, SourceUptime, SourceCPUTemperature}
	sort.Strings(s)
	return s
}

// Reader returns a device.Reader for the named source.
func (c *Collector) Reader(source string) (device.Reader, error) {
	switch source {
	case SourceHostname:
		return device.ReaderFunc(c.Hostname), nil
	case SourceIPAddress:
		return device.ReaderFunc(c.IPAddress), nil
	case SourceOSName:
		return device.ReaderFunc(c.OSName), nil
	case SourceUptime:
		return device.ReaderFunc(c.Uptime), nil
	case SourceCPUTemperature:
		return device.ReaderFunc(c.CPUTemperature), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownSource, source, strings.Join(Sources(), ", "))
	}
}

// Hostname returns the kernel host name.
func (c *Collector) Hostname() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.host != "" {
		return c.host, nil
	}
	host, err := c.hostname()
	if err != nil {
		return nil, fmt.Errorf("reading hostname: %w", err)
	}
	c.host = host
	return host, nil
}

// IPAddress returns the address of the interface used for outbound traffic.
func (c *Collector) IPAddress() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ip != "" {
		return c.ip, nil
	}

	conn, err := c.dial("udp", probeAddr)
	if err != nil {
		return nil, fmt.Errorf("reading ip address: %w", err)
	}
	defer conn.Close()

	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return nil, fmt.Errorf("reading ip address: %w", err)
	}
	c.ip = host
	return host, nil
}

// OSName returns PRETTY_NAME from os-release, or GOOS/GOARCH when the file
// is missing.
func (c *Collector) OSName() (any, error) {
	data, err := os.ReadFile(c.osRelease)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return runtime.GOOS + "/" + runtime.GOARCH, nil
		}
		return nil, fmt.Errorf("reading os release: %w", err)
	}

	var name string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "PRETTY_NAME":
			return value, nil
		case "NAME":
			name = value
		}
	}
	if name != "" {
		return name, nil
	}
	return runtime.GOOS + "/" + runtime.GOARCH, nil
}

// Uptime returns the system uptime in whole seconds. Without /proc it
// falls back to the uptime of this process.
func (c *Collector) Uptime() (any, error) {
	data, err := os.ReadFile(c.procUptime)
	if err != nil {
		return float64(int64(time.Since(c.start).Seconds())), nil
	}

	// Format: "<uptime> <idle>", both in seconds
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return nil, errors.New("invalid /proc/uptime format")
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid /proc/uptime format: %w", err)
	}
	return float64(int64(secs)), nil
}

// CPUTemperature returns the SoC temperature in degrees Celsius.
func (c *Collector) CPUTemperature() (any, error) {
	data, err := os.ReadFile(c.thermal)
	if err != nil {
		return nil, fmt.Errorf("reading cpu temperature: %w", err)
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return nil, fmt.Errorf("parsing cpu temperature: %w", err)
	}
	return milli / 1000, nil
}
