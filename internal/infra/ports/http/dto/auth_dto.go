package dto

type GuestRequest struct {
	DeviceID string `json:"deviceId"`
}

type GuestResponse struct {
	Token         string `json:"token"`
	ParticipantID string `json:"participantId"`
	ExpiresIn     int64  `json:"expiresIn"`
}
