package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Route queries OSRM /route between points, returning distance, duration,
// the encoded polyline and the snapped destination.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline",
		o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Geometry string  `json:"geometry"`
		} `json:"routes"`
		Waypoints []struct {
			Location [2]float64 `json:"location"` // lon, lat
		} `json:"waypoints"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	rt := Route{
		DistanceM: out.Routes[0].Distance,
		DurationS: out.Routes[0].Duration,
		Polyline:  out.Routes[0].Geometry,
		Resolved:  to,
	}
	if n := len(out.Waypoints); n > 0 {
		rt.Resolved = models.Coord{Lat: out.Waypoints[n-1].Location[1], Lon: out.Waypoints[n-1].Location[0]}
	}
	return rt, nil
}
