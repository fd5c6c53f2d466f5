package services

import "strings"

// NormalizeDeviceID maps a display name such as "Line 1" to the registry id "line-1".
func NormalizeDeviceID(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}
