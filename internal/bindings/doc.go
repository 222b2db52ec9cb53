// Package bindings builds device bindings from bind blocks in config.yaml.
//
//	variables:
//	  - name: LED
//	    type: bool
//	    value: false
//	    bind: {kind: gpio_out, pin: 18}
//	  - name: CPU Temp
//	    type: numeric
//	    bind: {kind: file, path: /sys/class/thermal/thermal_zone0/temp, scale: 0.001}
//	  - name: GPU Temp
//	    type: numeric
//	    bind: {kind: command, command: vcgencmd measure_temp}
//
//	diagnostics:
//	  - name: Host
//	    bind: {kind: sysinfo, source: hostname}
//
// Kinds:
//
//	constant  always reports value
//	state     remembers the last commanded value
//	gpio_in   reads a pin (pull: up, down, none; active_low inverts)
//	gpio_out  drives a pin on command and reports the level read back
//	file      reads a file; numbers are multiplied by scale
//	command   runs a shell command; the first number of its output is
//	          multiplied by scale
//	sysinfo   hostname, ip_address, os_name, uptime, cpu_temperature
//
// A bind block without a kind leaves the variable a passive holder that
// only changes through commands. GPIO pin numbers are BCM.
package bindings
