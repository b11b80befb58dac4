//go:build !gocv

package camera

// NewLocalDevice without the gocv build tag returns the synthetic test
// pattern so the booth binary still runs end to end on machines without
// OpenCV. The deviceID is ignored.
func NewLocalDevice(_ int) (Device, error) {
	return NewSyntheticDevice(0, 0), nil
}
