package smtp

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"

	"github.com/emersion/go-sasl"
)

// cramMD5Client implements the CRAM-MD5 mechanism (RFC 2195).
type cramMD5Client struct {
	username string
	secret   string
}

func newCRAMMD5Client(username, secret string) sasl.Client {
	return &cramMD5Client{username: username, secret: secret}
}

func (c *cramMD5Client) Start() (string, []byte, error) {
	return "CRAM-MD5", nil, nil
}

func (c *cramMD5Client) Next(challenge []byte) ([]byte, error) {
	if len(challenge) == 0 {
		return nil, errors.New("smtp: empty CRAM-MD5 challenge")
	}

	mac := hmac.New(md5.New, []byte(c.secret))
	mac.Write(challenge)

	return []byte(c.username + " " + hex.EncodeToString(mac.Sum(nil))), nil
}
