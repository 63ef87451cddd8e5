package transport

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duocall/internal/util"
)

// newAPI builds a pion API with the default codecs (VP8/VP9/H264/Opus...)
// and interceptors (NACK, RTCP reports), logging through util.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// newPeerConnection creates a PeerConnection from the given ICE settings.
func newPeerConnection(cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	return api.NewPeerConnection(cfg)
}
