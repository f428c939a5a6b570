// Command derot_logger records the derotator status stream in InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
)

var (
	org         = flag.String("org", "w1xm", "InfluxDB organization")
	bucket      = flag.String("bucket", "derot.raw", "InfluxDB bucket")
	measurement = flag.String("measurement", "derot.status", "measurement name")
)

func main() {
	flag.Parse()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create client
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(*org, *bucket)
	defer writeApi.Close()
	// Get errors channel
	errorsCh := writeApi.Errors()
	// Create go proc for reading and logging errors
	go func() {
		for err := range errorsCh {
			log.Printf("write error: %v", err)
		}
	}()
	url := os.Getenv("DEROT_ADDRESS")
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	for ctx.Err() == nil {
		if err := logData(ctx, url, writeApi); err != nil && ctx.Err() == nil {
			log.Print(err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(1 * time.Second):
		}
	}
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

// statusPoint turns one status message into a point. The state string
// becomes a tag so it can be grouped on.
func statusPoint(status interface{}, now time.Time) *write.Point {
	fields := make(map[string]interface{})
	flattenStatus(fields, status, "")
	tags := make(map[string]string)
	if state, ok := fields["State"].(string); ok {
		tags["state"] = state
		delete(fields, "State")
	}
	return influxdb2.NewPoint(*measurement, tags, fields, now)
}

func logData(ctx context.Context, url string, writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		// write asynchronously
		writeApi.WritePoint(statusPoint(status, time.Now()))
	}
}
