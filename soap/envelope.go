package soap

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	envelopeNS = "http://www.w3.org/2003/05/soap-envelope"
	wsseNS     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	wsuNS      = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"

	passwordDigestType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	base64EncodingType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
)

// Credentials is a username/password pair. A nil *Credentials means the
// request is sent without authentication.
type Credentials struct {
	Username string
	Password string
}

// buildEnvelope wraps body in a SOAP 1.2 envelope, adding a WS-Security
// UsernameToken header when creds is set.
func buildEnvelope(body string, creds *Credentials, now time.Time) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="` + envelopeNS + `">`)
	if creds != nil {
		b.WriteString(`<s:Header>`)
		writeUsernameToken(&b, creds, now)
		b.WriteString(`</s:Header>`)
	}
	b.WriteString(`<s:Body>`)
	b.WriteString(body)
	b.WriteString(`</s:Body></s:Envelope>`)
	return []byte(b.String())
}

func writeUsernameToken(b *strings.Builder, creds *Credentials, now time.Time) {
	id := uuid.New()
	nonce := id[:]
	created := now.UTC().Format("2006-01-02T15:04:05.000Z")

	b.WriteString(`<wsse:Security s:mustUnderstand="1" xmlns:wsse="` + wsseNS + `" xmlns:wsu="` + wsuNS + `">`)
	b.WriteString(`<wsse:UsernameToken><wsse:Username>`)
	xml.EscapeText(b, []byte(creds.Username))
	b.WriteString(`</wsse:Username><wsse:Password Type="` + passwordDigestType + `">`)
	b.WriteString(passwordDigest(nonce, created, creds.Password))
	b.WriteString(`</wsse:Password><wsse:Nonce EncodingType="` + base64EncodingType + `">`)
	b.WriteString(base64.StdEncoding.EncodeToString(nonce))
	b.WriteString(`</wsse:Nonce><wsu:Created>` + created + `</wsu:Created>`)
	b.WriteString(`</wsse:UsernameToken></wsse:Security>`)
}

// passwordDigest is Base64(SHA1(nonce + created + password)).
func passwordDigest(nonce []byte, created, password string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
