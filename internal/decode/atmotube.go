package decode

import "encoding/binary"

// Atmotube characteristic payload layouts (little-endian):
//
//	PM            [0:3] PM1 ×100, [3:6] PM2.5 ×100, [6:9] PM10 ×100 (uint24, µg/m³)
//	environmental [0] temperature +40 offset (°C), [1] humidity (%), [2:6] pressure ×100 (uint32, hPa)
//	VOC           [0:2] TVOC (uint16, ppb)
//	status        [0] battery (%), [1] flags, bit0 = charging (byte optional)
const (
	pmPayloadMinLen     = 9
	envPayloadMinLen    = 6
	vocPayloadMinLen    = 2
	statusPayloadMinLen = 1

	temperatureOffset = 40
)

// PMValues holds one particulate-matter sample in µg/m³.
type PMValues struct {
	PM1  float64
	PM25 float64
	PM10 float64
}

// Environmental holds one temperature/humidity/pressure sample.
type Environmental struct {
	TemperatureC float64
	HumidityPct  float64
	PressureHpa  float64
}

// Status holds battery state from the status characteristic.
type Status struct {
	BatteryPct int
	Charging   bool
}

// DecodePM decodes the PM characteristic. Each concentration is a 3-byte
// little-endian unsigned integer in hundredths of a µg/m³; the arithmetic is
// exact integers until the single final division by 100.
func DecodePM(buf []byte) (PMValues, error) {
	if len(buf) < pmPayloadMinLen {
		return PMValues{}, shortBuffer("pm", pmPayloadMinLen, len(buf))
	}
	return PMValues{
		PM1:  float64(uint24LE(buf[0:3])) / 100,
		PM25: float64(uint24LE(buf[3:6])) / 100,
		PM10: float64(uint24LE(buf[6:9])) / 100,
	}, nil
}

// EncodePM is the inverse of DecodePM for the same 9-byte layout. Values are
// quantized to hundredths of a µg/m³; it exists for the round-trip tests and
// the simulated sensor.
func EncodePM(v PMValues) []byte {
	buf := make([]byte, pmPayloadMinLen)
	putUint24LE(buf[0:3], uint32(v.PM1*100+0.5))
	putUint24LE(buf[3:6], uint32(v.PM25*100+0.5))
	putUint24LE(buf[6:9], uint32(v.PM10*100+0.5))
	return buf
}

func putUint24LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// DecodeEnvironmental decodes the BME280 characteristic. Temperature uses a
// +40 offset encoding (byte0 − 40 °C, so the wire range is −40..+215 °C),
// humidity is a raw percentage, pressure is a little-endian uint32 in
// hundredths of an hPa.
func DecodeEnvironmental(buf []byte) (Environmental, error) {
	if len(buf) < envPayloadMinLen {
		return Environmental{}, shortBuffer("environmental", envPayloadMinLen, len(buf))
	}
	return Environmental{
		TemperatureC: float64(int(buf[0]) - temperatureOffset),
		HumidityPct:  float64(buf[1]),
		PressureHpa:  float64(binary.LittleEndian.Uint32(buf[2:6])) / 100,
	}, nil
}

// DecodeVOC decodes the VOC characteristic: a little-endian uint16 in ppb,
// no scaling.
func DecodeVOC(buf []byte) (float64, error) {
	if len(buf) < vocPayloadMinLen {
		return 0, shortBuffer("voc", vocPayloadMinLen, len(buf))
	}
	return float64(binary.LittleEndian.Uint16(buf[0:2])), nil
}

// DecodeBattery decodes a bare battery-level payload: byte0 as a 0–100 percentage.
func DecodeBattery(buf []byte) (int, error) {
	if len(buf) < statusPayloadMinLen {
		return 0, shortBuffer("battery", statusPayloadMinLen, len(buf))
	}
	return int(buf[0]), nil
}

// DecodeStatus decodes the status characteristic: battery percentage plus a
// charging flag when the flags byte is present.
func DecodeStatus(buf []byte) (Status, error) {
	level, err := DecodeBattery(buf)
	if err != nil {
		return Status{}, err
	}
	s := Status{BatteryPct: level}
	if len(buf) >= 2 {
		s.Charging = buf[1]&0x01 != 0
	}
	return s, nil
}
