package types

type ResponseQR struct {
	QRCode string `json:"qr_code"`
}

type ResponsePairPhone struct {
	PairCode string `json:"pair_code"`
}

type ResponseSend struct {
	MessageID string `json:"message_id"`
}

type ResponseToken struct {
	Token string `json:"token"`
}
