//go:build !govips || !cgo

package render

func Startup() error {
	return nil
}

func Shutdown() {}

func newRenderer() (Renderer, error) {
	return stdlibRenderer{}, nil
}
