package globe

import "math"

const (
	// radiusFactor is the globe radius at the initial zoom, as a share of the
	// shorter screen side.
	radiusFactor = 0.42
	MinZoom      = 1.0
	MaxZoom      = 12.0
)

// Camera is the view onto the globe.
type Camera struct {
	Center LngLat  `json:"center"`
	Zoom   float64 `json:"zoom"`
}

// Projector maps between geographic and screen coordinates with an
// orthographic projection centred on the camera.
type Projector struct {
	Width, Height int
}

// Radius is the on-screen globe radius at zoom.
func (p Projector) Radius(zoom float64) float64 {
	side := math.Min(float64(p.Width), float64(p.Height))
	return side * radiusFactor * math.Pow(2, zoom-InitialZoom)
}

// Project returns the screen position of lng/lat. visible is false on the
// far side of the globe.
func (p Projector) Project(cam Camera, lng, lat float64) (x, y float64, visible bool) {
	phi, lambda := lat*math.Pi/180, lng*math.Pi/180
	phi0, lambda0 := cam.Center.Lat*math.Pi/180, cam.Center.Lng*math.Pi/180
	r := p.Radius(cam.Zoom)

	cosc := math.Sin(phi0)*math.Sin(phi) + math.Cos(phi0)*math.Cos(phi)*math.Cos(lambda-lambda0)
	px := r * math.Cos(phi) * math.Sin(lambda-lambda0)
	py := r * (math.Cos(phi0)*math.Sin(phi) - math.Sin(phi0)*math.Cos(phi)*math.Cos(lambda-lambda0))

	x = float64(p.Width)/2 + px
	y = float64(p.Height)/2 - py
	return x, y, cosc >= 0
}

// Unproject returns the geographic position under a screen pixel. ok is
// false when the pixel is off the globe.
func (p Projector) Unproject(cam Camera, pt Point) (ll LngLat, ok bool) {
	r := p.Radius(cam.Zoom)
	x := pt.X - float64(p.Width)/2
	y := float64(p.Height)/2 - pt.Y
	rho := math.Hypot(x, y)
	if rho > r {
		return LngLat{}, false
	}
	if rho == 0 {
		return cam.Center, true
	}

	phi0, lambda0 := cam.Center.Lat*math.Pi/180, cam.Center.Lng*math.Pi/180
	c := math.Asin(rho / r)
	sinc, cosc := math.Sin(c), math.Cos(c)

	phi := math.Asin(cosc*math.Sin(phi0) + y*sinc*math.Cos(phi0)/rho)
	lambda := lambda0 + math.Atan2(x*sinc, rho*math.Cos(phi0)*cosc-y*math.Sin(phi0)*sinc)

	return LngLat{Lng: WrapLongitude(lambda * 180 / math.Pi), Lat: phi * 180 / math.Pi}, true
}

// WrapLongitude folds lng into [-180, 180).
func WrapLongitude(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

func ClampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}
