package environment

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

// Soil is the surface-layer soil profile of a location
type Soil struct {
	Composition models.SoilComposition
	PH          float64
}

var fallbackSoil = Soil{
	Composition: models.SoilComposition{
		ClayPct:          25.0,
		SandPct:          45.0,
		SiltPct:          30.0,
		OrganicCarbonPct: 2.5,
		SoilType:         "Loam",
	},
	PH: 6.5,
}

type soilGridsResponse struct {
	Properties struct {
		Layers []soilGridsLayer `json:"layers"`
	} `json:"properties"`
}

type soilGridsLayer struct {
	Name        string `json:"name"`
	UnitMeasure struct {
		DFactor float64 `json:"d_factor"`
	} `json:"unit_measure"`
	Depths []struct {
		Label  string `json:"label"`
		Values struct {
			Mean *float64 `json:"mean"`
		} `json:"values"`
	} `json:"depths"`
}

// value returns the mean of the first depth in conventional units
func (l soilGridsLayer) value() (float64, bool) {
	if len(l.Depths) == 0 || l.Depths[0].Values.Mean == nil {
		return 0, false
	}
	v := *l.Depths[0].Values.Mean
	if l.UnitMeasure.DFactor > 0 {
		v /= l.UnitMeasure.DFactor
	}
	return v, true
}

// SoilClient queries the ISRIC SoilGrids properties API
type SoilClient struct {
	baseURL string
	http    *upstream.Client
}

// NewSoilClient creates a new SoilGrids client
func NewSoilClient(baseURL string, http *upstream.Client) *SoilClient {
	return &SoilClient{baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

// Profile returns the 0-5cm soil profile at a location
func (c *SoilClient) Profile(ctx context.Context, lat, lon float64) (Soil, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	for _, p := range []string{"clay", "sand", "silt", "soc", "phh2o"} {
		q.Add("property", p)
	}
	q.Set("depth", "0-5cm")
	q.Set("value", "mean")

	var resp soilGridsResponse
	if err := c.http.GetJSON(ctx, "soil profile", c.baseURL+"/soilgrids/v2.0/properties/query?"+q.Encode(), &resp); err != nil {
		return Soil{}, err
	}

	values := make(map[string]float64, len(resp.Properties.Layers))
	for _, layer := range resp.Properties.Layers {
		if v, ok := layer.value(); ok {
			values[layer.Name] = v
		}
	}
	if len(values) == 0 {
		// SoilGrids returns null means over water and unmapped areas
		return Soil{}, &upstream.NetworkError{Kind: upstream.BadResponse, Op: "soil profile"}
	}

	// properties missing from the response keep their fallback values
	soil := fallbackSoil
	if v, ok := values["clay"]; ok {
		soil.Composition.ClayPct = v
	}
	if v, ok := values["sand"]; ok {
		soil.Composition.SandPct = v
	}
	if v, ok := values["silt"]; ok {
		soil.Composition.SiltPct = v
	}
	if v, ok := values["soc"]; ok {
		// soc arrives in g/kg
		soil.Composition.OrganicCarbonPct = v / 10
	}
	if ph, ok := values["phh2o"]; ok && ph > 0 {
		soil.PH = ph
	}
	soil.Composition.SoilType = ClassifySoil(soil.Composition.ClayPct, soil.Composition.SandPct, soil.Composition.SiltPct)
	return soil, nil
}

// ClassifySoil names a soil texture from its clay, sand and silt percentages
func ClassifySoil(clay, sand, silt float64) string {
	switch {
	case clay > 40:
		return "Clay"
	case sand > 70:
		return "Sandy"
	case silt > 40:
		return "Silty"
	case clay > 20 && sand > 40:
		return "Clay Loam"
	case sand > 50 && clay < 20:
		return "Sandy Loam"
	default:
		return "Loam"
	}
}
