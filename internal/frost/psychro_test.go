package frost

import (
	"errors"
	"math"
	"testing"
)

func TestDewPoint(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		rh   float64
		want float64
	}{
		{"saturated air", 10.0, 100.0, 10.0},
		{"typical frost night", 2.0, 80.0, -1.09},
		{"dry afternoon", 25.0, 30.0, 6.22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DewPoint(tt.temp, tt.rh)
			if err != nil {
				t.Fatalf("DewPoint(%v, %v) error = %v", tt.temp, tt.rh, err)
			}
			if math.Abs(got-tt.want) > 0.05 {
				t.Errorf("DewPoint(%v, %v) = %.2f, want %.2f", tt.temp, tt.rh, got, tt.want)
			}
		})
	}
}

func TestDewPointBelowAirTemp(t *testing.T) {
	for _, rh := range []float64{20, 50, 80, 99} {
		dp, err := DewPoint(5.0, rh)
		if err != nil {
			t.Fatalf("DewPoint(5, %v) error = %v", rh, err)
		}
		if dp > 5.0 {
			t.Errorf("DewPoint(5, %v) = %.2f, want <= air temperature", rh, dp)
		}
	}
}

func TestWetBulbBelowDryBulb(t *testing.T) {
	for _, tt := range []struct{ temp, rh float64 }{
		{-2.0, 80.0},
		{0.0, 60.0},
		{5.0, 40.0},
		{20.0, 90.0},
	} {
		wb, err := WetBulb(tt.temp, tt.rh)
		if err != nil {
			t.Fatalf("WetBulb(%v, %v) error = %v", tt.temp, tt.rh, err)
		}
		if wb > tt.temp {
			t.Errorf("WetBulb(%v, %v) = %.2f, want <= dry-bulb", tt.temp, tt.rh, wb)
		}
	}
}

func TestWetBulbDeterministic(t *testing.T) {
	a, err := WetBulb(-2.0, 80.0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := WetBulb(-2.0, 80.0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("WetBulb not deterministic: %v != %v", a, b)
	}
}

func TestWetBulbDomain(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		rh   float64
	}{
		{"humidity too low", 10.0, 4.0},
		{"humidity too high", 10.0, 99.5},
		{"temperature too cold", -25.0, 50.0},
		{"temperature too hot", 55.0, 50.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WetBulb(tt.temp, tt.rh)
			if !errors.Is(err, ErrOutOfDomain) {
				t.Errorf("WetBulb(%v, %v) error = %v, want ErrOutOfDomain", tt.temp, tt.rh, err)
			}
		})
	}
}

func TestPsychrometricsPrefersMeasuredDewPoint(t *testing.T) {
	measured := -3.5
	got, err := Psychrometrics(2.0, 80.0, &measured)
	if err != nil {
		t.Fatal(err)
	}
	if got.DewPoint != measured {
		t.Errorf("DewPoint = %v, want measured %v", got.DewPoint, measured)
	}

	derived, err := Psychrometrics(2.0, 80.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if derived.DewPoint == measured {
		t.Errorf("derived dew point unexpectedly equals the measured sentinel")
	}
}

func TestBlossomTempBelowWetBulb(t *testing.T) {
	wb, err := WetBulb(-1.0, 85.0)
	if err != nil {
		t.Fatal(err)
	}
	bt, err := BlossomTemp(-1.0, 85.0, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := bt, wb-1.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("BlossomTemp = %v, want %v", got, want)
	}
}
