package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned when a notification signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature checks the x-signature header ("ts=...,v1=...") of a
// notification against the HMAC-SHA256 of its manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func VerifySignature(secret, signatureHeader, requestID, dataID string) error {
	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}

	want, err := hex.DecodeString(v1)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(Sign(secret, Manifest(dataID, requestID, ts)), want) {
		return ErrInvalidSignature
	}
	return nil
}

// Manifest builds the signed template. Parts that are empty are omitted.
func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

// Sign returns the HMAC-SHA256 of manifest.
func Sign(secret, manifest string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return mac.Sum(nil)
}
