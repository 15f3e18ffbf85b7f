package manifest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const signatureType = "jws-detached"

var ErrBadSignature = errors.New("signature does not match manifest")

// JWS is a flattened JSON serialization. For a detached signature Payload is
// empty and the signed bytes travel separately.
type JWS struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload,omitempty"`
	Signature string `json:"signature"`
}

type jwsHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

// SignDetachedJWS signs payload with an RS256 PEM key (PKCS#1 or PKCS#8).
func SignDetachedJWS(payload, privateKeyPEM []byte) (JWS, error) {
	priv, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return JWS{}, err
	}
	hb, err := json.Marshal(jwsHeader{Alg: "RS256", Typ: "JWT"})
	if err != nil {
		return JWS{}, err
	}
	protected := base64.RawURLEncoding.EncodeToString(hb)
	h := sha256.Sum256([]byte(protected + "." + base64.RawURLEncoding.EncodeToString(payload)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, h[:])
	if err != nil {
		return JWS{}, err
	}
	return JWS{Protected: protected, Signature: base64.RawURLEncoding.EncodeToString(sig)}, nil
}

func ParseDetachedJWS(data []byte) (JWS, error) {
	var j JWS
	if err := json.Unmarshal(data, &j); err != nil {
		return JWS{}, err
	}
	if j.Protected == "" || j.Signature == "" {
		return JWS{}, errors.New("jws missing protected header or signature")
	}
	return j, nil
}

// VerifyDetachedJWS checks j against payload using the RSA key of a PEM
// certificate or public key.
func VerifyDetachedJWS(payload []byte, j JWS, certPEM []byte) error {
	hb, err := base64.RawURLEncoding.DecodeString(j.Protected)
	if err != nil {
		return fmt.Errorf("protected header: %w", err)
	}
	var hdr jwsHeader
	if err := json.Unmarshal(hb, &hdr); err != nil {
		return fmt.Errorf("protected header: %w", err)
	}
	if hdr.Alg != "RS256" {
		return fmt.Errorf("unsupported jws alg %q", hdr.Alg)
	}
	if j.Payload != "" && j.Payload != base64.RawURLEncoding.EncodeToString(payload) {
		return ErrBadSignature
	}
	sig, err := base64.RawURLEncoding.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	pub, err := parseRSAPublicKey(certPEM)
	if err != nil {
		return err
	}
	h := sha256.Sum256([]byte(j.Protected + "." + base64.RawURLEncoding.EncodeToString(payload)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// Sign stamps m with the signer of certPEM and signs its JSON form. The
// returned bytes are what must be stored as the manifest.
func Sign(m Manifest, keyPEM, certPEM []byte, sigFile string) ([]byte, JWS, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, JWS{}, err
	}
	m.Signature = &Signature{
		Type:          signatureType,
		CertSubject:   cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SignatureFile: sigFile,
	}
	payload, err := Marshal(m)
	if err != nil {
		return nil, JWS{}, err
	}
	j, err := SignDetachedJWS(payload, keyPEM)
	if err != nil {
		return nil, JWS{}, err
	}
	return payload, j, nil
}

// SignaturePath derives the default .jws path for a manifest file.
func SignaturePath(manifestPath string) string {
	return strings.TrimSuffix(manifestPath, ".json") + ".jws"
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", key)
	}
	return rsaKey, nil
}

func parseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("parse cert: no PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no pem block")
	}
	var key any
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = cert.PublicKey
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = k
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", key)
	}
	return pub, nil
}
