package keys

import (
	"io/ioutil"
	"os"
	"path"
	"reflect"
	"testing"

	"github.com/driftnetworks/drift/src/crypto"
)

func TestSimpleKeyfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "drift")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	// Initialize a key and try a write
	key, _ = GenerateECDSAKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should get key
	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(*nKey, *key) {
		t.Fatalf("Keys do not match")
	}
}

func TestSignatureEncoding(t *testing.T) {
	privKey, _ := GenerateECDSAKey()

	msg := "time is a flat circle"
	msgBytes := []byte(msg)
	msgHashBytes := crypto.SHA256(msgBytes)

	r, s, _ := Sign(privKey, msgHashBytes)

	encodedSig := EncodeSignature(r, s)

	dr, ds, err := DecodeSignature(encodedSig)
	if err != nil {
		t.Fatal(err)
	}

	if r.Cmp(dr) != 0 {
		t.Fatalf("Signature Rs differ")
	}

	if s.Cmp(ds) != 0 {
		t.Fatalf("Signature Ss differ")
	}

	if !Verify(&privKey.PublicKey, msgHashBytes, dr, ds) {
		t.Fatalf("Signature should verify")
	}
}

func TestDecodeSignatureErrors(t *testing.T) {
	if _, _, err := DecodeSignature("notasignature"); err == nil {
		t.Fatalf("DecodeSignature should reject input without a separator")
	}

	if _, _, err := DecodeSignature("!!|??"); err == nil {
		t.Fatalf("DecodeSignature should reject non base-36 values")
	}
}

func TestPublicKeyGUID(t *testing.T) {
	key, _ := GenerateECDSAKey()

	pubBytes := FromPublicKey(&key.PublicKey)

	guid := PublicKeyGUID(pubBytes)
	if guid == 0 {
		t.Fatalf("GUID should not be zero")
	}

	if guid != PublicKeyGUID(pubBytes) {
		t.Fatalf("GUID derivation should be stable")
	}

	// The GUID must survive a marshal round-trip of the key.
	pub2 := ToPublicKey(pubBytes)
	if pub2 == nil {
		t.Fatalf("ToPublicKey returned nil")
	}

	if PublicKeyGUID(FromPublicKey(pub2)) != guid {
		t.Fatalf("GUIDs differ after round-trip")
	}
}

func TestToPublicKeyGarbage(t *testing.T) {
	if pub := ToPublicKey([]byte{}); pub != nil {
		t.Fatalf("empty input should yield a nil key")
	}

	if pub := ToPublicKey([]byte{0x04, 0x01, 0x02}); pub != nil {
		t.Fatalf("truncated input should yield a nil key")
	}
}
