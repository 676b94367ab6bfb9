// Command examples demonstrates the tracking SDK: publishing positions as
// a driver and following a delivery as a customer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	track "github.com/Ireoluwatomide/swift-track-relay/sdk/go"
)

func main() {
	baseURL := envOr("TRACK_URL", "http://localhost:8080")
	deliveryID := envOr("TRACK_DELIVERY_ID", "DEL-1001")
	driverToken := os.Getenv("TRACK_DRIVER_TOKEN")
	customerToken := os.Getenv("TRACK_CUSTOMER_TOKEN")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if driverToken != "" {
		go publish(ctx, track.NewClient(baseURL, deliveryID, driverToken))
	}
	if customerToken == "" {
		log.Fatal("TRACK_CUSTOMER_TOKEN is required")
	}

	client := track.NewClient(baseURL, deliveryID, customerToken)

	// One-shot REST snapshot.
	if snapshot, err := client.LatestPosition(ctx); err == nil && snapshot.Position != nil {
		fmt.Printf("last known: seq=%d lat=%.4f lng=%.4f\n",
			snapshot.Position.Sequence, snapshot.Position.Lat, snapshot.Position.Lng)
	}

	// Live follow with automatic reconnect.
	for frame := range client.Follow(ctx, track.FollowOptions{}) {
		switch frame.Kind {
		case track.FramePosition:
			fmt.Printf("position seq=%d lat=%.4f lng=%.4f\n",
				frame.Sample.Sequence, frame.Sample.Lat, frame.Sample.Lng)
		case track.FramePresence:
			fmt.Printf("driver %s\n", frame.Presence.Status)
		case track.FrameGap:
			fmt.Printf("gap: missed %d..%d\n", frame.Gap.SinceSequence, frame.Gap.FromSequence)
		}
	}
}

func publish(ctx context.Context, client *track.Client) {
	session, err := client.Drive(ctx)
	if err != nil {
		log.Printf("driver connect failed: %v", err)
		return
	}
	defer session.Close()

	lat, lng := 6.5244, 3.3792
	for {
		seq, err := session.Report(ctx, track.Position{Lat: lat, Lng: lng})
		if err != nil {
			log.Printf("report failed: %v", err)
			return
		}
		log.Printf("published seq=%d", seq)
		lat += 0.0005
		lng += 0.0003

		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
