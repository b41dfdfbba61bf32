package scan

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ResultCache stores item results by an opaque content key. Keys are salted
// digests and stored results carry neither matched text nor a redacted
// preview, so implementations never see item text.
type ResultCache interface {
	Get(ctx context.Context, key string) (*ItemResult, bool)
	Set(ctx context.Context, key string, result *ItemResult)
}

// fingerprinter is implemented by detectors that can name their pattern set
// and recognizer, e.g. *privacy.Detector
type fingerprinter interface {
	Fingerprint() string
}

// cacheKey digests the content together with every setting that changes
// the detections: the detector's patterns and recognizer, the sensitivity
// and the allowlist. Previews are rebuilt from cached offsets, so preview
// settings are not part of the key.
func cacheKey(salt []byte, detectorID, content string, cfg BatchConfig, sensitivity string) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(detectorID))
	mac.Write([]byte{0})
	mac.Write([]byte(sensitivity))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.Itoa(len(cfg.Allowlist))))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.Join(cfg.Allowlist, "\x00")))
	mac.Write([]byte{0})
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
