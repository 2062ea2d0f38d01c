package qrcode

import (
	"strings"

	"huddle/config"
	"huddle/internal/domain/service"
	"huddle/internal/errors"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

type qrcodeService struct {
	size                 int
	errorCorrectionLevel qrcode.RecoveryLevel
}

// NewQRCodeService creates a new QR code service instance
func NewQRCodeService(size int, errorCorrectionLevel string) service.QRCodeService {
	if size <= 0 {
		size = defaultSize
	}

	// Set error correction level
	var level qrcode.RecoveryLevel
	switch strings.ToUpper(errorCorrectionLevel) {
	case "L":
		level = qrcode.Low
	case "M":
		level = qrcode.Medium
	case "Q":
		level = qrcode.High
	case "H":
		level = qrcode.Highest
	default:
		level = qrcode.Medium
	}

	return &qrcodeService{
		size:                 size,
		errorCorrectionLevel: level,
	}
}

// ProvideQRCodeService builds the renderer from the payment configuration.
func ProvideQRCodeService(cfg *config.Config) service.QRCodeService {
	if cfg.Payment == nil {
		return NewQRCodeService(defaultSize, "M")
	}

	return NewQRCodeService(cfg.Payment.QRSize, cfg.Payment.QRErrorCorrectionLevel)
}

// Encode renders content, typically a payment link, as a PNG QR code
func (s *qrcodeService) Encode(content string) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("qr content must not be empty")
	}

	qrCode, err := qrcode.New(content, s.errorCorrectionLevel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create QR code")
	}

	pngBytes, err := qrCode.PNG(s.size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate PNG")
	}

	return pngBytes, nil
}
