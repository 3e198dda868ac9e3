package threshold

// ValidKeys is the closed threshold key vocabulary (spec.md §6.2). Any
// key outside this set is rejected by the store.
var ValidKeys = map[string]bool{
	"critical_temperature_low": true, "critical_temperature_high": true,
	"warning_temperature_low": true, "warning_temperature_high": true,
	"critical_humidity_low": true, "critical_humidity_high": true,
	"warning_humidity_low": true, "warning_humidity_high": true,
	"critical_amperage_low_single_phase": true, "critical_amperage_high_single_phase": true,
	"warning_amperage_low_single_phase": true, "warning_amperage_high_single_phase": true,
	"critical_amperage_low_3_phase": true, "critical_amperage_high_3_phase": true,
	"warning_amperage_low_3_phase": true, "warning_amperage_high_3_phase": true,
	"critical_voltage_low": true, "critical_voltage_high": true,
	"warning_voltage_low": true, "warning_voltage_high": true,
	"critical_power_high": true, "warning_power_high": true,
}

// IsValidKey reports whether key belongs to the closed vocabulary.
func IsValidKey(key string) bool {
	return ValidKeys[key]
}
