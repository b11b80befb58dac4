// Command booth takes a single photo from the local camera, uploads it, and
// prints the public URL. It drives the same capture flow as the web service,
// just without a browser in front of it.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dotframe/snapbooth/internal/camera"
	"github.com/dotframe/snapbooth/internal/config"
	"github.com/dotframe/snapbooth/internal/session"
	"github.com/dotframe/snapbooth/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stderr, "[booth] ", log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	device, err := camera.NewLocalDevice(cfg.Booth.CameraDevice)
	if err != nil {
		logger.Fatalf("open camera device %d: %v", cfg.Booth.CameraDevice, err)
	}

	objectStore, err := storage.NewClient(storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Access:        cfg.Storage.AccessKey,
		Secret:        cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		logger.Fatalf("object storage client failed: %v", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Fatalf("ensure bucket %s failed: %v", objectStore.Bucket(), err)
	}

	flow := session.NewFlow(logger, device, objectStore)
	defer flow.Close()
	flow.SetConstraints(camera.Constraints{
		Facing: camera.FacingUser,
		Width:  cfg.Booth.Width,
		Height: cfg.Booth.Height,
	})

	if err := flow.AcquireCamera(ctx); err != nil {
		logger.Fatalf("acquire camera: %v", err)
	}

	// Some capture backends need a few frames before the sensor settles.
	view, err := captureWithWarmup(ctx, flow)
	if err != nil {
		logger.Fatalf("capture: %v", err)
	}
	logger.Printf("captured %dx%d", view.Width, view.Height)

	if _, err := flow.SelectFilter(ctx, cfg.Booth.Filter); err != nil {
		logger.Fatalf("upload with filter %s: %v", cfg.Booth.Filter, err)
	}

	url, err := flow.Result()
	if err != nil {
		logger.Fatalf("result: %v", err)
	}

	if cfg.Booth.PresignTTL > 0 {
		key, err := flow.ResultKey()
		if err != nil {
			logger.Fatalf("result key: %v", err)
		}
		url, err = objectStore.PresignedGetURL(ctx, key, cfg.Booth.PresignTTL)
		if err != nil {
			logger.Fatalf("presign result: %v", err)
		}
	}
	fmt.Println(url)
}

func captureWithWarmup(ctx context.Context, flow *session.Flow) (session.View, error) {
	var view session.View
	for attempt := 0; attempt < 10; attempt++ {
		var err error
		view, err = flow.Capture(ctx)
		if err != nil {
			return view, err
		}
		if view.HasPhoto {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return view, fmt.Errorf("camera produced no frame")
}
