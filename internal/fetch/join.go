package fetch

import (
	"github.com/dcops/pdumonitor/internal/models"
	"github.com/dcops/pdumonitor/pkg/nengclient"
)

// join merges device and power records by device id. A record present
// in only one endpoint is dropped — it cannot be evaluated without
// both halves (spec.md §6.1).
func join(devices []nengclient.DeviceRecord, power []nengclient.PowerRecord) []models.PDUReading {
	powerByID := make(map[string]nengclient.PowerRecord, len(power))
	for _, p := range power {
		powerByID[p.ID] = p
	}

	readings := make([]models.PDUReading, 0, len(devices))
	for _, d := range devices {
		p, ok := powerByID[d.ID]
		if !ok {
			continue
		}

		reading := models.PDUReading{
			PDUID:          d.ID,
			RackID:         d.RackID,
			Name:           d.Name,
			Country:        d.Country,
			Site:           d.Site,
			DC:             d.DC,
			Phase:          normalizePhase(d.Phase),
			Chain:          d.Chain,
			Node:           d.Node,
			Serial:         d.Serial,
			GatewayName:    d.GwName,
			GatewayIP:      d.GwIP,
			Current:        p.TotalAmps,
			Voltage:        p.TotalVolts,
			SensorHumidity: p.SensorHumidity,
			Power:          p.TotalWatts,
		}

		// Temperature prefers the dedicated sensor field over the plain
		// one, per spec.md §6.1/§4.4's "sensor_* fields, not a separate
		// PDU-reported temperature field".
		if p.SensorTemperature != nil {
			reading.Temperature = p.SensorTemperature
		} else {
			reading.Temperature = p.Temperature
		}

		reading.Power = derivePower(reading)

		readings = append(readings, reading)
	}
	return readings
}

func normalizePhase(raw string) models.Phase {
	switch raw {
	case string(models.PhaseSingle):
		return models.PhaseSingle
	case string(models.PhaseThree):
		return models.PhaseThree
	default:
		return models.PhaseUnknown
	}
}

// derivePower fills in power = current * voltage for single-phase PDUs
// when NENG didn't report totalWatts directly; three-phase power
// cannot be derived this way without a power factor, so it is left
// unreadable rather than approximated (SPEC_FULL.md §3).
func derivePower(reading models.PDUReading) *float64 {
	if reading.Power != nil {
		return reading.Power
	}
	if reading.Phase != models.PhaseSingle || reading.Current == nil || reading.Voltage == nil {
		return nil
	}
	derived := *reading.Current * *reading.Voltage
	return &derived
}
