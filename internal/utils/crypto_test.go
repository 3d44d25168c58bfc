// internal/utils/crypto_test.go
package utils

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := "test-secret"
	plaintext := "AIzaSyExampleKeyValue123"

	encrypted, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("密文不应等于明文")
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatalf("解密失败: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("解密结果不符: %q", decrypted)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	encrypted, err := Encrypt("secret value", "key-one")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decrypt(encrypted, "key-two"); err == nil {
		t.Fatal("错误的口令应导致解密失败")
	}
}

func TestEncryptProducesDistinctCiphertext(t *testing.T) {
	// 随机nonce保证相同明文得到不同密文
	a, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("两次加密不应得到相同密文")
	}
}

func TestDecryptGarbage(t *testing.T) {
	if _, err := Decrypt("not-base64!!!", "key"); err == nil {
		t.Fatal("非法密文应返回错误")
	}
}
