package handlers

import (
	"net/http"
	"strconv"

	"github.com/skip2/go-qrcode"

	"github.com/Billy-Davies-2/pricing-game/internal/logger"
)

const (
	defaultQRSize = 320
	minQRSize     = 128
	maxQRSize     = 1024
)

// joinURL is the page teams open to join. Without a configured public URL it
// is derived from the request, respecting X-Forwarded-Proto.
func (h *APIHandlers) joinURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/"
}

// JoinQR renders a PNG QR code of the join URL
func (h *APIHandlers) JoinQR(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < minQRSize || n > maxQRSize {
			http.Error(w, "size must be an integer between 128 and 1024", http.StatusBadRequest)
			return
		}
		size = n
	}

	target := h.joinURL(r)
	png, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		logger.Error("QR generation failed", "url", target, "error", err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(png)
}
