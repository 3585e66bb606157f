package model

import (
	"github.com/shopspring/decimal"
)

// Pickup fees are quoted in KES.

// MaxVolumeKg is the largest single pickup accepted.
const MaxVolumeKg = 50

var (
	MinimumFee = decimal.NewFromInt(200)

	ratesPerKg = map[WasteType]decimal.Decimal{
		WasteOrganic: decimal.NewFromInt(50),
		WastePlastic: decimal.NewFromInt(100),
		WasteMetal:   decimal.NewFromInt(150),
		WasteGlass:   decimal.NewFromInt(120),
		WasteMixed:   decimal.NewFromInt(80),
	}

	volumeKg = map[Volume]float64{
		VolumeSmall:  5,
		VolumeMedium: 15,
		VolumeLarge:  40,
	}
)

// EstimateFee quotes a pickup of kg kilograms. Types without their own rate
// are charged as mixed waste; the result never drops below MinimumFee.
func EstimateFee(t WasteType, kg float64) decimal.Decimal {
	rate, ok := ratesPerKg[t]
	if !ok {
		rate = ratesPerKg[WasteMixed]
	}
	fee := rate.Mul(decimal.NewFromFloat(kg)).Round(2)
	if fee.LessThan(MinimumFee) {
		return MinimumFee
	}
	return fee
}

// EstimatedKg returns the explicit weight when set, else the nominal weight of the volume class.
func (in PickupRequestInput) EstimatedKg() float64 {
	if in.VolumeKg > 0 {
		return in.VolumeKg
	}
	return volumeKg[in.Volume]
}
