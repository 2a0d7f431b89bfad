package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"session-service/internal/models"
)

const (
	taxRate        = 0.13
	serviceFeeRate = 0.10
	earthRadiusKM  = 6371.0
)

// Quote computes the billing breakdown for a session of the given length.
func Quote(hourlyRate float64, length time.Duration) models.Billing {
	base := hourlyRate * length.Hours()
	taxes := round2(base * taxRate)
	fee := round2(base * serviceFeeRate)
	base = round2(base)
	return models.Billing{
		BasePrice:  base,
		Taxes:      taxes,
		ServiceFee: fee,
		Total:      round2(base + taxes + fee),
	}
}

// PricingQuote returns the price breakdown for a prospective booking.
func PricingQuote(c *gin.Context) {
	hourlyRate, err := strconv.ParseFloat(c.Query("hourlyRate"), 64)
	if err != nil || hourlyRate < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hourlyRate"})
		return
	}
	minutes, err := strconv.Atoi(c.Query("minutes"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid minutes"})
		return
	}
	c.JSON(http.StatusOK, Quote(hourlyRate, time.Duration(minutes)*time.Minute))
}

// Distance returns the great-circle distance in kilometres between two
// coordinates.
func Distance(c *gin.Context) {
	coords := make([]float64, 4)
	for i, name := range []string{"fromLat", "fromLng", "toLat", "toLng"} {
		v, err := strconv.ParseFloat(c.Query(name), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
			return
		}
		coords[i] = v
	}
	c.JSON(http.StatusOK, gin.H{"distanceKm": round2(haversine(coords[0], coords[1], coords[2], coords[3]))})
}

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
