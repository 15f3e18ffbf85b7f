package manifest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func signer(t *testing.T) (keyPEM, certPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ground station"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return keyPEM, certPEM
}

func TestBuildAndVerify(t *testing.T) {
	dir := t.TempDir()
	capture := writeFile(t, dir, "capture.gfl", "frames")
	plan := writeFile(t, dir, "plan.yaml", "board: 1\n")

	m, err := Build([]string{capture, plan})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Items) != 2 || m.Items[0].Type != "capture" || m.Items[1].Type != "mission" {
		t.Fatalf("items = %+v", m.Items)
	}
	if m.Items[0].Size != 6 {
		t.Fatalf("size = %d", m.Items[0].Size)
	}
	out := filepath.Join(dir, "manifest.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, _, err := Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Verify(loaded, dir); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	writeFile(t, dir, "capture.gfl", "frameX")
	if err := Verify(loaded, dir); err == nil {
		t.Fatalf("tampered capture verified")
	}
}

func TestVerifyRejects(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		m    Manifest
	}{
		{"algorithm", Manifest{ShaAlgo: "md5", Items: []Item{{Path: "a"}}}},
		{"empty", Manifest{ShaAlgo: ShaAlgo}},
		{"escape", Manifest{ShaAlgo: ShaAlgo, Items: []Item{{Path: "../x"}}}},
		{"missing", Manifest{ShaAlgo: ShaAlgo, Items: []Item{{Path: "nope.gfl"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := Verify(tc.m, dir); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSignAndVerifyDetached(t *testing.T) {
	keyPEM, certPEM := signer(t)
	m := Manifest{ShaAlgo: ShaAlgo, Items: []Item{{Path: "capture.gfl", Size: 1, Sha256: "00"}}}

	payload, j, err := Sign(m, keyPEM, certPEM, "manifest.jws")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if j.Payload != "" {
		t.Fatalf("detached jws carries payload")
	}
	if err := VerifyDetachedJWS(payload, j, certPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}

	signed, _, err := loadBytes(t, payload)
	if err != nil {
		t.Fatal(err)
	}
	if signed.Signature == nil || signed.Signature.CertSubject != "CN=ground station" {
		t.Fatalf("signature = %+v", signed.Signature)
	}

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = ' '
	if err := VerifyDetachedJWS(tampered, j, certPEM); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload err = %v", err)
	}
	_, otherCert := signer(t)
	if err := VerifyDetachedJWS(payload, j, otherCert); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong signer err = %v", err)
	}
}

func TestParseDetachedJWS(t *testing.T) {
	if _, err := ParseDetachedJWS([]byte(`{"protected":"e30"}`)); err == nil {
		t.Fatalf("jws without signature accepted")
	}
	if got := SignaturePath("out/manifest.json"); got != "out/manifest.jws" {
		t.Fatalf("SignaturePath = %q", got)
	}
}

func loadBytes(t *testing.T, data []byte) (Manifest, []byte, error) {
	t.Helper()
	path := writeFile(t, t.TempDir(), "m.json", string(data))
	return Load(path)
}
