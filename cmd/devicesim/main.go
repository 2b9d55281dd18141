// devicesim plays the device role against the telemetry listener: it dials,
// prints the greeting and emits GNSS+BATTERY envelopes on an interval.
package main

import (
	"flag"
	"math/rand"
	"time"

	"TrackHub/internal/tcpclient"
	"TrackHub/pkg/codec"

	"go.uber.org/zap"
)

func main() {
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 4567, "server port")
	imei := flag.String("imei", "123456789012345", "device IMEI")
	interval := flag.Duration("interval", 5*time.Second, "send interval")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	client := tcpclient.New(*host, *port)
	client.OnData(func(data []byte) {
		g, err := codec.DecodeGreeting(data)
		if err != nil {
			zap.L().Warn("unreadable server payload", zap.Error(err))
			return
		}
		zap.L().Info("server greeting",
			zap.String("message", g.Message),
			zap.String("assigned_id", g.YourID))
	})
	go client.Run()
	defer client.Close()

	start := time.Now()
	lon, lat := 2.3522, 48.8566
	for range time.Tick(*interval) {
		// drift the position a little so the map moves
		lon += (rand.Float64() - 0.5) / 100
		lat += (rand.Float64() - 0.5) / 100

		gnss, err := codec.NewItem(codec.TagGNSS, codec.GNSSData{
			Longitude: lon,
			Latitude:  lat,
			Time:      time.Now().Unix(),
		})
		if err != nil {
			zap.L().Error("build GNSS item failed", zap.Error(err))
			continue
		}
		bat, err := codec.NewItem(codec.TagBattery, codec.BatteryData{Percent: 20 + rand.Intn(80)})
		if err != nil {
			zap.L().Error("build battery item failed", zap.Error(err))
			continue
		}

		env := codec.Envelope{
			Count:  2,
			IMEI:   *imei,
			Uptime: int64(time.Since(start).Seconds()),
			Items:  []codec.Item{gnss, bat},
		}
		raw, err := codec.Encode(&env)
		if err != nil {
			zap.L().Error("encode envelope failed", zap.Error(err))
			continue
		}
		if err := client.Send(raw); err != nil {
			zap.L().Warn("send failed, will retry next tick", zap.Error(err))
		}
	}
}
