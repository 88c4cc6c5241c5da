package decode

import "encoding/binary"

// PMScan real-time frame layout (little-endian):
//
//	[0:4]   device uptime in seconds (uint32, informational)
//	[4:6]   PM1 ×10   (uint16, tenths of µg/m³)
//	[6:8]   PM2.5 ×10 (uint16, tenths of µg/m³)
//	[8:10]  PM10 ×10  (uint16, tenths of µg/m³)
//	[10:12] temperature ×10 (int16, tenths of °C)
//	[12:14] humidity ×10 (uint16, tenths of %)
//
// The battery characteristic is a single byte: bits 0–6 level (%), bit7 charging.
const (
	pmscanFrameMinLen   = 14
	pmscanBatteryMinLen = 1
)

// PMScanFrame is one decoded PMScan real-time sample. PMScan exposes no TVOC
// and no pressure.
type PMScanFrame struct {
	UptimeSec    uint32
	PM           PMValues
	TemperatureC float64
	HumidityPct  float64
}

// DecodePMScanFrame decodes the real-time data characteristic.
func DecodePMScanFrame(buf []byte) (PMScanFrame, error) {
	if len(buf) < pmscanFrameMinLen {
		return PMScanFrame{}, shortBuffer("pmscan-frame", pmscanFrameMinLen, len(buf))
	}
	return PMScanFrame{
		UptimeSec: binary.LittleEndian.Uint32(buf[0:4]),
		PM: PMValues{
			PM1:  float64(binary.LittleEndian.Uint16(buf[4:6])) / 10,
			PM25: float64(binary.LittleEndian.Uint16(buf[6:8])) / 10,
			PM10: float64(binary.LittleEndian.Uint16(buf[8:10])) / 10,
		},
		TemperatureC: float64(int16(binary.LittleEndian.Uint16(buf[10:12]))) / 10,
		HumidityPct:  float64(binary.LittleEndian.Uint16(buf[12:14])) / 10,
	}, nil
}

// DecodePMScanBattery decodes the battery characteristic.
func DecodePMScanBattery(buf []byte) (Status, error) {
	if len(buf) < pmscanBatteryMinLen {
		return Status{}, shortBuffer("pmscan-battery", pmscanBatteryMinLen, len(buf))
	}
	return Status{
		BatteryPct: int(buf[0] & 0x7F),
		Charging:   buf[0]&0x80 != 0,
	}, nil
}

// EncodePMScanFrame is the inverse of DecodePMScanFrame, quantizing to the
// frame's tenths resolution. Used by tests and the simulated sensor.
func EncodePMScanFrame(f PMScanFrame) []byte {
	buf := make([]byte, pmscanFrameMinLen)
	binary.LittleEndian.PutUint32(buf[0:4], f.UptimeSec)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(f.PM.PM1*10+0.5))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(f.PM.PM25*10+0.5))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(f.PM.PM10*10+0.5))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(int16(f.TemperatureC*10)))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(f.HumidityPct*10+0.5))
	return buf
}
