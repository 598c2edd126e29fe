package whatsapp

import (
	"encoding/base64"

	qrCode "github.com/skip2/go-qrcode"
)

// QRCodeDataURL renders a pairing code as a scannable PNG data URL.
func QRCodeDataURL(code string) (string, error) {
	qrPNG, err := qrCode.Encode(code, qrCode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG), nil
}
