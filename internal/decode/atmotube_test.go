package decode

import (
	"errors"
	"testing"
)

func TestDecodePM(t *testing.T) {
	t.Run("known payload", func(t *testing.T) {
		// PM1=1.23, PM2.5=45.67, PM10=891.01 in hundredths, little-endian uint24.
		buf := []byte{
			123, 0, 0, // 123
			0xD7, 0x11, 0, // 4567
			0x0D, 0x5C, 0x01, // 89101
		}
		got, err := DecodePM(buf)
		if err != nil {
			t.Fatalf("DecodePM() err = %v; want nil", err)
		}
		if got.PM1 != 1.23 || got.PM25 != 45.67 || got.PM10 != 891.01 {
			t.Errorf("DecodePM() = %+v; want {1.23 45.67 891.01}", got)
		}
	})

	t.Run("third byte is the high byte", func(t *testing.T) {
		buf := []byte{0, 0, 1, 0, 0, 0, 0, 0, 0} // 0x010000 = 65536
		got, err := DecodePM(buf)
		if err != nil {
			t.Fatalf("DecodePM() err = %v; want nil", err)
		}
		if got.PM1 != 655.36 {
			t.Errorf("PM1 = %v; want 655.36", got.PM1)
		}
	})

	t.Run("too short fails with DecodeError", func(t *testing.T) {
		for n := 0; n < 9; n++ {
			_, err := DecodePM(make([]byte, n))
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("DecodePM(len=%d) err = %v; want *DecodeError", n, err)
			}
			if de.Need != 9 || de.Got != n {
				t.Errorf("DecodeError = %+v; want Need=9 Got=%d", de, n)
			}
		}
	})

	t.Run("extra trailing bytes are ignored", func(t *testing.T) {
		buf := make([]byte, 12)
		buf[0] = 100 // PM1 = 1.00
		got, err := DecodePM(buf)
		if err != nil {
			t.Fatalf("DecodePM() err = %v; want nil", err)
		}
		if got.PM1 != 1.0 {
			t.Errorf("PM1 = %v; want 1.0", got.PM1)
		}
	})
}

func TestEncodePM_roundTrip(t *testing.T) {
	// encode(decode(x)) must reproduce x for every value representable at
	// the 1/100 quantization step.
	cases := []PMValues{
		{PM1: 0, PM25: 0, PM10: 0},
		{PM1: 0.01, PM25: 0.02, PM10: 0.03},
		{PM1: 1.23, PM25: 45.67, PM10: 891.01},
		{PM1: 999.99, PM25: 1000, PM10: 65535.99},
	}
	for _, want := range cases {
		got, err := DecodePM(EncodePM(want))
		if err != nil {
			t.Fatalf("DecodePM(EncodePM(%+v)) err = %v", want, err)
		}
		if got != want {
			t.Errorf("round trip = %+v; want %+v", got, want)
		}
	}
}

func TestDecodeEnvironmental(t *testing.T) {
	t.Run("known vector", func(t *testing.T) {
		got, err := DecodeEnvironmental([]byte{100, 50, 0, 0, 0, 0})
		if err != nil {
			t.Fatalf("DecodeEnvironmental() err = %v; want nil", err)
		}
		if got.TemperatureC != 60 {
			t.Errorf("TemperatureC = %v; want 60", got.TemperatureC)
		}
		if got.HumidityPct != 50 {
			t.Errorf("HumidityPct = %v; want 50", got.HumidityPct)
		}
		if got.PressureHpa != 0 {
			t.Errorf("PressureHpa = %v; want 0", got.PressureHpa)
		}
	})

	t.Run("negative temperature via offset", func(t *testing.T) {
		got, err := DecodeEnvironmental([]byte{0, 0, 0, 0, 0, 0})
		if err != nil {
			t.Fatalf("DecodeEnvironmental() err = %v; want nil", err)
		}
		if got.TemperatureC != -40 {
			t.Errorf("TemperatureC = %v; want -40", got.TemperatureC)
		}
	})

	t.Run("pressure little-endian scaled", func(t *testing.T) {
		// 101325 Pa-ish: 1013.25 hPa wire value = 101325 = 0x00018BCD.
		got, err := DecodeEnvironmental([]byte{65, 40, 0xCD, 0x8B, 0x01, 0x00})
		if err != nil {
			t.Fatalf("DecodeEnvironmental() err = %v; want nil", err)
		}
		if got.PressureHpa != 1013.25 {
			t.Errorf("PressureHpa = %v; want 1013.25", got.PressureHpa)
		}
	})

	t.Run("too short fails", func(t *testing.T) {
		_, err := DecodeEnvironmental([]byte{1, 2, 3, 4, 5})
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("err = %v; want *DecodeError", err)
		}
	})
}

func TestDecodeVOC(t *testing.T) {
	t.Run("little-endian ppb", func(t *testing.T) {
		got, err := DecodeVOC([]byte{0x64, 0x00})
		if err != nil {
			t.Fatalf("DecodeVOC() err = %v; want nil", err)
		}
		if got != 100 {
			t.Errorf("DecodeVOC() = %v; want 100", got)
		}
	})

	t.Run("high byte", func(t *testing.T) {
		got, err := DecodeVOC([]byte{0x00, 0x01})
		if err != nil {
			t.Fatalf("DecodeVOC() err = %v; want nil", err)
		}
		if got != 256 {
			t.Errorf("DecodeVOC() = %v; want 256", got)
		}
	})

	t.Run("too short fails", func(t *testing.T) {
		_, err := DecodeVOC([]byte{0x64})
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("err = %v; want *DecodeError", err)
		}
	})
}

func TestDecodeStatus(t *testing.T) {
	t.Run("battery only", func(t *testing.T) {
		got, err := DecodeStatus([]byte{87})
		if err != nil {
			t.Fatalf("DecodeStatus() err = %v; want nil", err)
		}
		if got.BatteryPct != 87 || got.Charging {
			t.Errorf("DecodeStatus() = %+v; want {87 false}", got)
		}
	})

	t.Run("charging flag", func(t *testing.T) {
		got, err := DecodeStatus([]byte{42, 0x01})
		if err != nil {
			t.Fatalf("DecodeStatus() err = %v; want nil", err)
		}
		if got.BatteryPct != 42 || !got.Charging {
			t.Errorf("DecodeStatus() = %+v; want {42 true}", got)
		}
	})

	t.Run("empty fails", func(t *testing.T) {
		_, err := DecodeStatus(nil)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("err = %v; want *DecodeError", err)
		}
	})
}
