package main

import (
	"fmt"
	"net/http"

	"TrackHub/internal/access"
	"TrackHub/internal/data"
	"TrackHub/internal/device"
	"TrackHub/internal/server"
	"TrackHub/internal/session"
	"TrackHub/internal/tcpserver"
	"TrackHub/internal/telemetry"
	"TrackHub/internal/user"
	"TrackHub/internal/wsserver"
	"TrackHub/pkg/bootstrap"
	"TrackHub/pkg/codec"
	"TrackHub/pkg/config"
	"TrackHub/pkg/db/mysql"

	"go.uber.org/zap"
)

func main() {
	cleanup, err := bootstrap.InitAll("")
	if err != nil {
		fmt.Printf("bootstrap failed, err:%v\n", err)
		return
	}
	defer cleanup()

	// stores
	deviceRepo := device.NewRepo(mysql.DB)
	dataRepo := data.NewRepo(mysql.DB)
	userRepo := user.NewRepo(mysql.DB)
	sessions := session.NewDefaultStore(config.Conf.SessionConfig)

	// subscriber push channel
	wsSrv := wsserver.NewServer(sessions, userRepo, config.Conf.WSConfig)
	wsSrv.Start()

	// ingestion pipeline
	resolver := access.NewResolver(userRepo, wsSrv)
	publisher := telemetry.NewPublisher(resolver, wsSrv)
	dispatcher := telemetry.NewDispatcher(deviceRepo, dataRepo)

	tcpSrv := tcpserver.NewServer(config.Conf.TCPConfig)
	tcpSrv.OnData(func(id string, raw []byte) {
		env, err := codec.Decode(raw)
		if err != nil {
			// envelope dropped, connection stays up
			zap.L().Warn("telemetry decode failed",
				zap.String("conn_id", id),
				zap.Error(err))
			return
		}
		for _, ev := range dispatcher.Handle(env) {
			publisher.Publish(ev)
		}
	})
	if err := tcpSrv.Start(); err != nil {
		zap.L().Fatal("start tcp server failed", zap.Error(err))
		return
	}
	defer tcpSrv.Shutdown()

	// HTTP API
	engine := server.NewRouter(
		user.NewHandler(userRepo, sessions),
		device.NewHandler(deviceRepo, dataRepo),
	)
	addr := fmt.Sprintf(":%d", config.Conf.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}
	zap.L().Info("server run", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.L().Fatal("listen failed", zap.Error(err))
	}
}
