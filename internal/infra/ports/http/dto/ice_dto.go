package dto

import "github.com/pion/webrtc/v4"

// IceServersResponse повторяет RTCConfiguration.iceServers на клиенте
type IceServersResponse struct {
	IceServers []webrtc.ICEServer `json:"iceServers"`
}
