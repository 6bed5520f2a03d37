package duoweb

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	prefixTX   = "TX"
	prefixAPP  = "APP"
	prefixAUTH = "AUTH"

	requestExpiry = 300 * time.Second
	appExpiry     = 3600 * time.Second

	integrationKeyLen = 20
	secretKeyLen      = 40
	// MinApplicationKeyLen is the shortest accepted application secret.
	MinApplicationKeyLen = 40
)

var (
	errBadUser        = errors.New("subject must be non-empty and contain no '|'")
	errBadKeys        = errors.New("integration, secret or application key has the wrong length")
	errMalformed      = errors.New("signed value malformed")
	errSignature      = errors.New("signed value signature invalid")
	errPrefix         = errors.New("signed value prefix mismatch")
	errIntegration    = errors.New("signed value bound to another integration")
	errExpired        = errors.New("signed value expired")
	errSubjectsDiffer = errors.New("auth and app signatures name different subjects")
)

// keys is one Duo Web integration plus the application secret.
type keys struct {
	ikey string
	skey string
	akey string
}

func (k keys) check() error {
	if len(k.ikey) != integrationKeyLen || len(k.skey) != secretKeyLen || len(k.akey) < MinApplicationKeyLen {
		return errBadKeys
	}
	return nil
}

// signRequest builds sig_request for subject: TX signed with the secret key
// and APP signed with the application key, joined by ':'.
func signRequest(k keys, subject string, now time.Time) (string, error) {
	if subject == "" || strings.Contains(subject, "|") {
		return "", errBadUser
	}
	if err := k.check(); err != nil {
		return "", err
	}
	vals := subject + "|" + k.ikey
	tx := signVals(k.skey, vals, prefixTX, now.Add(requestExpiry))
	app := signVals(k.akey, vals, prefixAPP, now.Add(appExpiry))
	return tx + ":" + app, nil
}

// verifyResponse checks sig_response and returns the subject it names.
func verifyResponse(k keys, sigResponse string, now time.Time) (string, error) {
	if err := k.check(); err != nil {
		return "", err
	}
	authSig, appSig, ok := strings.Cut(sigResponse, ":")
	if !ok {
		return "", errMalformed
	}
	authUser, err := parseVals(k.skey, authSig, prefixAUTH, k.ikey, now)
	if err != nil {
		return "", err
	}
	appUser, err := parseVals(k.akey, appSig, prefixAPP, k.ikey, now)
	if err != nil {
		return "", err
	}
	if !hmac.Equal([]byte(authUser), []byte(appUser)) {
		return "", errSubjectsDiffer
	}
	return authUser, nil
}

func signVals(key, vals, prefix string, expires time.Time) string {
	payload := vals + "|" + strconv.FormatInt(expires.Unix(), 10)
	cookie := prefix + "|" + base64.StdEncoding.EncodeToString([]byte(payload))
	return cookie + "|" + hmacHex(key, cookie)
}

func parseVals(key, val, prefix, ikey string, now time.Time) (string, error) {
	parts := strings.Split(val, "|")
	if len(parts) != 3 {
		return "", errMalformed
	}
	uPrefix, uB64, uSig := parts[0], parts[1], parts[2]

	expected := hmacHex(key, uPrefix+"|"+uB64)
	// Compare MACs of the two values so the comparison leaks nothing about
	// the expected signature.
	if !hmac.Equal([]byte(hmacHex(key, expected)), []byte(hmacHex(key, uSig))) {
		return "", errSignature
	}
	if uPrefix != prefix {
		return "", errPrefix
	}

	decoded, err := base64.StdEncoding.DecodeString(uB64)
	if err != nil {
		return "", errMalformed
	}
	fields := strings.Split(string(decoded), "|")
	if len(fields) != 3 {
		return "", errMalformed
	}
	user, uIKey, expStr := fields[0], fields[1], fields[2]
	if uIKey != ikey {
		return "", errIntegration
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", errMalformed
	}
	if now.Unix() >= exp {
		return "", errExpired
	}
	return user, nil
}

func hmacHex(key, msg string) string {
	mac := hmac.New(sha1.New, []byte(key))
	_, _ = mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
